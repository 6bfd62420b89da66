// Package sqlrepo implements the storage contracts once for every
// database/sql backend. A backend contributes only its Dialect (quoting,
// placeholders, upsert syntax, ledger SQL, unique-violation detection); the
// transactional unit, batch insert, merge bookkeeping, and ledger store live
// here.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dwetl/internal/ledger"
	"dwetl/internal/merge"
	"dwetl/internal/storage"
)

// Dialect captures the backend syntax differences sqlrepo needs.
type Dialect struct {
	// Merge carries identifier quoting and the current-timestamp expression;
	// the merge query builders hang off it.
	Merge merge.Dialect

	// Placeholder renders the n-th bind parameter, 1-based ("?" or "$n" or "@pn").
	Placeholder func(n int) string

	// Upsert renders the complete merge statement for spec.
	Upsert func(spec merge.Spec) string

	// InsertRunSQL inserts a ledger row; bind order is
	// (process_name, start_time, status).
	InsertRunSQL string

	// ScanInsertID selects how InsertRunSQL yields the new id: true scans it
	// from a returned row, false uses Result.LastInsertId.
	ScanInsertID bool

	// UpdateRunSQL applies the terminal transition; bind order is
	// (end_time, duration_sec, status, log_message, log_id).
	UpdateRunSQL string

	// IsUniqueViolation reports whether err is a unique or primary key
	// constraint violation.
	IsUniqueViolation func(error) bool

	// MaxParams caps bind parameters per batch INSERT statement. Zero means a
	// conservative 999 (the historical sqlite limit).
	MaxParams int
}

// DB adapts a *sql.DB plus a Dialect into a storage.Repository.
type DB struct {
	db *sql.DB
	d  Dialect
}

var _ storage.Repository = (*DB)(nil)

// New wraps an open handle. The caller keeps ownership of pool sizing; Close
// closes the handle.
func New(db *sql.DB, d Dialect) *DB {
	return &DB{db: db, d: d}
}

func (s *DB) Close() { _ = s.db.Close() }

func (s *DB) Exec(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// BeginUnit opens one table unit's transaction.
func (s *DB) BeginUnit(ctx context.Context) (storage.Unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	return &Unit{tx: tx, d: s.d}, nil
}

// Unit is one transaction-scoped table unit over database/sql.
type Unit struct {
	tx   *sql.Tx
	d    Dialect
	done bool
}

// Truncate clears table with DELETE so the clear stays transactional on
// every backend (TRUNCATE implicitly commits on MySQL).
func (u *Unit) Truncate(ctx context.Context, table string) error {
	_, err := u.tx.ExecContext(ctx, "DELETE FROM "+u.d.Merge.QuoteIdent(table))
	if err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

// CopyIn batch-inserts rows with multi-row INSERT statements sized to the
// dialect's bind parameter budget.
func (u *Unit) CopyIn(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	maxParams := u.d.MaxParams
	if maxParams <= 0 {
		maxParams = 999
	}
	chunk := maxParams / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		u.d.Merge.QuoteIdent(table),
		strings.Join(u.d.Merge.QuoteAll(columns), ", "),
	)

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		tuples := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*len(columns))
		n := 1
		for _, row := range batch {
			if len(row) != len(columns) {
				return total, fmt.Errorf("copy into %s: row has %d values, want %d", table, len(row), len(columns))
			}
			ph := make([]string, len(columns))
			for i := range columns {
				ph[i] = u.d.Placeholder(n)
				n++
			}
			tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
			args = append(args, row...)
		}
		if _, err := u.tx.ExecContext(ctx, prefix+strings.Join(tuples, ", "), args...); err != nil {
			return total, fmt.Errorf("copy into %s: %w", table, err)
		}
		total += int64(len(batch))
	}
	return total, nil
}

// Merge runs the three bookkeeping counts, then the dialect's upsert. The
// counts run before the upsert inside the same transaction, so the derived
// stats are exact for this merge.
func (u *Unit) Merge(ctx context.Context, spec merge.Spec) (merge.Stats, error) {
	var landingTotal, winners, existing int64
	for _, c := range []struct {
		query string
		dst   *int64
	}{
		{u.d.Merge.CountLanding(spec), &landingTotal},
		{u.d.Merge.CountWinners(spec), &winners},
		{u.d.Merge.CountExisting(spec), &existing},
	} {
		if err := u.tx.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return merge.Stats{}, fmt.Errorf("merge %s: count: %w", spec.Target, err)
		}
	}

	if _, err := u.tx.ExecContext(ctx, u.d.Upsert(spec)); err != nil {
		if u.d.IsUniqueViolation != nil && u.d.IsUniqueViolation(err) {
			return merge.Stats{}, &merge.ConsistencyError{Table: spec.Target, Err: err}
		}
		return merge.Stats{}, fmt.Errorf("merge %s: %w", spec.Target, err)
	}
	return merge.Derive(landingTotal, winners, existing), nil
}

// ReadRows returns every row of table, values aligned with columns.
func (u *Unit) ReadRows(ctx context.Context, table string, columns []string) ([][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(u.d.Merge.QuoteAll(columns), ", "),
		u.d.Merge.QuoteIdent(table),
	)
	rows, err := u.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("read %s: %w", table, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback unit: %w", err)
	}
	return nil
}

// Ledger store. Runs on the shared handle, outside any unit transaction.

func (s *DB) InsertRun(ctx context.Context, rec ledger.RunRecord) (int64, error) {
	args := []any{rec.Process, rec.StartTime, string(rec.Status)}
	if s.d.ScanInsertID {
		var id int64
		if err := s.db.QueryRowContext(ctx, s.d.InsertRunSQL, args...).Scan(&id); err != nil {
			return 0, fmt.Errorf("insert run: %w", err)
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, s.d.InsertRunSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func (s *DB) UpdateRun(ctx context.Context, rec ledger.RunRecord) error {
	res, err := s.db.ExecContext(ctx, s.d.UpdateRunSQL,
		rec.EndTime, rec.DurationSec, string(rec.Status), rec.Message, rec.ID)
	if err != nil {
		return fmt.Errorf("update run %d: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %d: no such record", rec.ID)
	}
	return nil
}

func (s *DB) ListRuns(ctx context.Context, f ledger.Filter) ([]ledger.RunRecord, error) {
	q := s.d.Merge.QuoteIdent
	query := fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s, %s, %s FROM %s",
		q("log_id"), q("process_name"), q("start_time"), q("end_time"),
		q("duration_sec"), q("status"), q("log_message"),
		q(storage.LedgerTableName),
	)

	var conds []string
	var args []any
	n := 1
	add := func(cond string, v any) {
		conds = append(conds, fmt.Sprintf(cond, s.d.Placeholder(n)))
		args = append(args, v)
		n++
	}
	if f.Process != "" {
		add(q("process_name")+" = %s", f.Process)
	}
	if f.Status != "" {
		add(q("status")+" = %s", string(f.Status))
	}
	if !f.Since.IsZero() {
		add(q("start_time")+" >= %s", f.Since)
	}
	if !f.Until.IsZero() {
		add(q("start_time")+" <= %s", f.Until)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s DESC, %s DESC", q("start_time"), q("log_id"))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []ledger.RunRecord
	for rows.Next() {
		var (
			rec      ledger.RunRecord
			start    any
			end      any
			duration sql.NullFloat64
			status   string
			message  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Process, &start, &end, &duration, &status, &message); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if t, ok := storage.AsTime(start); ok {
			rec.StartTime = t
		}
		if t, ok := storage.AsTime(end); ok {
			rec.EndTime = &t
		}
		rec.DurationSec = duration.Float64
		rec.Status = ledger.Status(status)
		rec.Message = message.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
