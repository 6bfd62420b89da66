// Package sqlite provides a SQLite-backed storage.Repository via the pure-Go
// modernc.org/sqlite driver. Besides small single-host deployments it is the
// backend the integration tests run against: a warehouse in a temp file
// exercises the full load path with no external service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"

	"dwetl/internal/merge"
	"dwetl/internal/storage"
	"dwetl/internal/storage/sqlrepo"
)

// SQLITE_CONSTRAINT primary result code.
const constraintCode = 19

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// Dialect returns the SQLite sqlrepo dialect.
func Dialect() sqlrepo.Dialect {
	md := merge.Dialect{QuoteIdent: quoteIdent, Now: "CURRENT_TIMESTAMP"}
	return sqlrepo.Dialect{
		Merge:       md,
		Placeholder: func(int) string { return "?" },
		Upsert:      func(s merge.Spec) string { return upsert(md, s) },
		InsertRunSQL: `INSERT INTO etl_log (process_name, start_time, status)` +
			` VALUES (?, ?, ?)`,
		UpdateRunSQL: `UPDATE etl_log SET end_time = ?, duration_sec = ?,` +
			` status = ?, log_message = ? WHERE log_id = ?`,
		IsUniqueViolation: isUniqueViolation,
		MaxParams:         999,
	}
}

// upsert renders INSERT ... SELECT ... ON CONFLICT DO UPDATE against the
// business-key unique constraint.
func upsert(d merge.Dialect, s merge.Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) %s",
		d.QuoteIdent(s.Target), d.InsertColumns(s), d.UpsertSource(s))

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ",
		strings.Join(d.QuoteAll(s.Keys), ", "))
	sets := make([]string, 0, len(s.Columns))
	for _, c := range s.NonKeyColumns() {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", d.QuoteIdent(c), d.QuoteIdent(c)))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent(merge.UpdatedAt), d.Now))
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code()&0xff == constraintCode
}

// Open opens (and pings) a SQLite database at dsn. Bound time.Time values
// must round-trip through text, so the driver's sqlite time format is forced
// unless the DSN already chooses one.
func Open(ctx context.Context, dsn string) (*sqlrepo.DB, error) {
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// The driver is in-process; one writer connection sidesteps
	// SQLITE_BUSY under the concurrent ledger writes.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return sqlrepo.New(db, Dialect()), nil
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
	storage.RegisterDDL("sqlite", EnsureSchema)
}
