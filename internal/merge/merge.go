// Package merge defines the backend-neutral merge contract: reconciling an
// unconstrained landing container into a constrained target keyed by one or
// more business-key columns.
//
// The package owns the parts of the contract every backend must agree on:
//
//   - eligibility: landing rows with an empty or null business key are
//     excluded from the merge (never inserted, never an error);
//   - duplicate collapse: when landing carries several rows for one key, the
//     row from the highest source line wins (landing insertion order is the
//     documented deterministic order);
//   - upsert only: rows present in the target but absent from landing are
//     never deleted, so partial extracts preserve history;
//   - audit columns: created_at is set once at first insert, updated_at is
//     refreshed on every merge that overwrites a row.
//
// Backends supply a Dialect for the few syntax points that differ and append
// their own upsert clause (ON CONFLICT, ON DUPLICATE KEY, MERGE INTO) to the
// deduplicated source select built here.
package merge

import (
	"fmt"
	"strings"
)

// Bookkeeping and audit column names shared by all backends.
const (
	// LineColumn records the 1-based source line of each landing row; it is
	// the deterministic order used for last-one-wins duplicate collapse.
	LineColumn = "_line"

	// CreatedAt is set once when a business key first reaches the target.
	CreatedAt = "created_at"

	// UpdatedAt is refreshed whenever a merge overwrites an existing row.
	UpdatedAt = "updated_at"
)

// Spec describes one merge: landing container -> constrained target.
type Spec struct {
	Landing string   // unconstrained landing container
	Target  string   // constrained target container (unique on Keys)
	Columns []string // source columns, file order (no audit/bookkeeping columns)
	Keys    []string // business-key columns, a subset of Columns
}

// Stats summarizes one merge. Skipped counts landing rows excluded from the
// merge: empty-key rows plus duplicate losers.
type Stats struct {
	Inserted int64
	Updated  int64
	Skipped  int64
}

// Dialect captures backend syntax differences used by the query builders.
type Dialect struct {
	// QuoteIdent quotes a single identifier segment.
	QuoteIdent func(string) string

	// Now is the SQL expression for the current timestamp.
	Now string
}

// NonKeyColumns returns the columns of s that are not business keys.
func (s Spec) NonKeyColumns() []string {
	keySet := make(map[string]struct{}, len(s.Keys))
	for _, k := range s.Keys {
		keySet[k] = struct{}{}
	}
	out := make([]string, 0, len(s.Columns)-len(s.Keys))
	for _, c := range s.Columns {
		if _, isKey := keySet[c]; !isKey {
			out = append(out, c)
		}
	}
	return out
}

// QuoteAll maps columns through d.QuoteIdent.
func (d Dialect) QuoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.QuoteIdent(c)
	}
	return out
}

// Eligible builds the predicate selecting landing rows whose every business
// key column is non-null and non-blank after trimming. alias prefixes the
// column references ("" for none).
func (d Dialect) Eligible(s Spec, alias string) string {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}
	conds := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		col := prefix + d.QuoteIdent(k)
		conds = append(conds, fmt.Sprintf("%s IS NOT NULL AND TRIM(%s) <> ''", col, col))
	}
	return strings.Join(conds, " AND ")
}

// Winners builds the subquery selecting, per eligible business key, the
// highest landing line number (the deterministic duplicate winner).
func (d Dialect) Winners(s Spec) string {
	keys := strings.Join(d.QuoteAll(s.Keys), ", ")
	return fmt.Sprintf(
		"SELECT %s, MAX(%s) AS %s FROM %s WHERE %s GROUP BY %s",
		keys,
		d.QuoteIdent(LineColumn),
		d.QuoteIdent(LineColumn),
		d.QuoteIdent(s.Landing),
		d.Eligible(s, ""),
		keys,
	)
}

// SourceSelect builds the deduplicated select over landing: exactly one row
// per eligible business key, columns in Spec order. Backends wrap this in
// their upsert statement.
func (d Dialect) SourceSelect(s Spec) string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = "l." + d.QuoteIdent(c)
	}
	on := make([]string, 0, len(s.Keys)+1)
	for _, k := range s.Keys {
		on = append(on, fmt.Sprintf("l.%s = w.%s", d.QuoteIdent(k), d.QuoteIdent(k)))
	}
	on = append(on, fmt.Sprintf("l.%s = w.%s", d.QuoteIdent(LineColumn), d.QuoteIdent(LineColumn)))

	return fmt.Sprintf(
		"SELECT %s FROM %s l JOIN (%s) w ON %s",
		strings.Join(cols, ", "),
		d.QuoteIdent(s.Landing),
		d.Winners(s),
		strings.Join(on, " AND "),
	)
}

// InsertColumns builds the quoted target column list for an upsert: the
// source columns plus the audit columns.
func (d Dialect) InsertColumns(s Spec) string {
	cols := append(d.QuoteAll(s.Columns), d.QuoteIdent(CreatedAt), d.QuoteIdent(UpdatedAt))
	return strings.Join(cols, ", ")
}

// UpsertSource builds the select feeding an INSERT-style upsert: the
// deduplicated source aliased s with the audit timestamps appended. The
// trailing WHERE keeps a following ON CONFLICT clause unambiguous on SQLite.
func (d Dialect) UpsertSource(s Spec) string {
	cols := make([]string, 0, len(s.Columns)+2)
	for _, c := range s.Columns {
		cols = append(cols, "s."+d.QuoteIdent(c))
	}
	cols = append(cols, d.Now, d.Now)
	return fmt.Sprintf("SELECT %s FROM (%s) s WHERE true",
		strings.Join(cols, ", "), d.SourceSelect(s))
}

// CountLanding builds the query counting all landing rows.
func (d Dialect) CountLanding(s Spec) string {
	return "SELECT COUNT(*) FROM " + d.QuoteIdent(s.Landing)
}

// CountWinners builds the query counting distinct eligible business keys.
func (d Dialect) CountWinners(s Spec) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) w", d.Winners(s))
}

// CountExisting builds the query counting distinct eligible keys already
// present in the target. Run before the upsert, it determines how the merge
// splits into inserts and updates.
func (d Dialect) CountExisting(s Spec) string {
	on := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		on = append(on, fmt.Sprintf("w.%s = t.%s", d.QuoteIdent(k), d.QuoteIdent(k)))
	}
	return fmt.Sprintf(
		"SELECT COUNT(*) FROM (%s) w JOIN %s t ON %s",
		d.Winners(s),
		d.QuoteIdent(s.Target),
		strings.Join(on, " AND "),
	)
}

// Derive computes Stats from the three pre-upsert counts.
func Derive(landingTotal, winners, existing int64) Stats {
	return Stats{
		Inserted: winners - existing,
		Updated:  existing,
		Skipped:  landingTotal - winners,
	}
}
