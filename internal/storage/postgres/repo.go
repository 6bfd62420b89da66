// Package postgres provides a Postgres-backed storage.Repository using pgx
// v5. Landing loads go through the COPY protocol; the merge is a keyed
// INSERT ... ON CONFLICT DO UPDATE against the business-key constraint.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dwetl/internal/ledger"
	"dwetl/internal/merge"
	"dwetl/internal/storage"
)

const uniqueViolationCode = "23505"

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

var dialect = merge.Dialect{QuoteIdent: quoteIdent, Now: "NOW()"}

// Repository is the Postgres warehouse handle.
type Repository struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Repository)(nil)

// Open connects a pool and pings the server.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() { r.pool.Close() }

func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// BeginUnit opens one table unit's transaction.
func (r *Repository) BeginUnit(ctx context.Context) (storage.Unit, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	return &Unit{tx: tx}, nil
}

// Unit is one transaction-scoped table unit.
type Unit struct {
	tx   pgx.Tx
	done bool
}

func (u *Unit) Truncate(ctx context.Context, table string) error {
	if _, err := u.tx.Exec(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

// CopyIn streams rows through the COPY protocol.
func (u *Unit) CopyIn(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	n, err := u.tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return n, fmt.Errorf("copy into %s: %s (%s)", table, pgErr.Detail, pgErr.SQLState())
		}
		return n, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

func (u *Unit) Merge(ctx context.Context, spec merge.Spec) (merge.Stats, error) {
	var landingTotal, winners, existing int64
	for _, c := range []struct {
		query string
		dst   *int64
	}{
		{dialect.CountLanding(spec), &landingTotal},
		{dialect.CountWinners(spec), &winners},
		{dialect.CountExisting(spec), &existing},
	} {
		if err := u.tx.QueryRow(ctx, c.query).Scan(c.dst); err != nil {
			return merge.Stats{}, fmt.Errorf("merge %s: count: %w", spec.Target, err)
		}
	}

	if _, err := u.tx.Exec(ctx, upsert(spec)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return merge.Stats{}, &merge.ConsistencyError{Table: spec.Target, Err: err}
		}
		return merge.Stats{}, fmt.Errorf("merge %s: %w", spec.Target, err)
	}
	return merge.Derive(landingTotal, winners, existing), nil
}

func upsert(s merge.Spec) string {
	d := dialect
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) %s",
		d.QuoteIdent(s.Target), d.InsertColumns(s), d.UpsertSource(s))

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ",
		strings.Join(d.QuoteAll(s.Keys), ", "))
	sets := make([]string, 0, len(s.Columns))
	for _, c := range s.NonKeyColumns() {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", d.QuoteIdent(c), d.QuoteIdent(c)))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent(merge.UpdatedAt), d.Now))
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

func (u *Unit) ReadRows(ctx context.Context, table string, columns []string) ([][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(dialect.QuoteAll(columns), ", "), quoteIdent(table))
	rows, err := u.tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
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
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit: %w", err)
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback unit: %w", err)
	}
	return nil
}

// Ledger store. Runs on the pool, outside any unit transaction.

func (r *Repository) InsertRun(ctx context.Context, rec ledger.RunRecord) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		"INSERT INTO etl_log (process_name, start_time, status) VALUES ($1, $2, $3) RETURNING log_id",
		rec.Process, rec.StartTime, string(rec.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func (r *Repository) UpdateRun(ctx context.Context, rec ledger.RunRecord) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE etl_log SET end_time = $1, duration_sec = $2, status = $3, log_message = $4 WHERE log_id = $5",
		rec.EndTime, rec.DurationSec, string(rec.Status), rec.Message, rec.ID)
	if err != nil {
		return fmt.Errorf("update run %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run %d: no such record", rec.ID)
	}
	return nil
}

func (r *Repository) ListRuns(ctx context.Context, f ledger.Filter) ([]ledger.RunRecord, error) {
	query := "SELECT log_id, process_name, start_time, end_time, duration_sec, status, log_message FROM etl_log"
	var conds []string
	var args []any
	add := func(col, op string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s %s $%d", col, op, len(args)))
	}
	if f.Process != "" {
		add("process_name", "=", f.Process)
	}
	if f.Status != "" {
		add("status", "=", string(f.Status))
	}
	if !f.Since.IsZero() {
		add("start_time", ">=", f.Since)
	}
	if !f.Until.IsZero() {
		add("start_time", "<=", f.Until)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time DESC, log_id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []ledger.RunRecord
	for rows.Next() {
		var (
			rec      ledger.RunRecord
			duration *float64
			status   string
			message  *string
		)
		if err := rows.Scan(&rec.ID, &rec.Process, &rec.StartTime, &rec.EndTime, &duration, &status, &message); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		if duration != nil {
			rec.DurationSec = *duration
		}
		rec.Status = ledger.Status(status)
		if message != nil {
			rec.Message = *message
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
	storage.RegisterDDL("postgres", EnsureSchema)
}
