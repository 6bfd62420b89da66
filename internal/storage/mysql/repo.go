// Package mysql provides a MySQL-backed storage.Repository using
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"

	"dwetl/internal/merge"
	"dwetl/internal/storage"
	"dwetl/internal/storage/sqlrepo"
)

// ER_DUP_ENTRY.
const dupEntryCode = 1062

func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// Dialect returns the MySQL sqlrepo dialect.
func Dialect() sqlrepo.Dialect {
	md := merge.Dialect{QuoteIdent: quoteIdent, Now: "NOW(6)"}
	return sqlrepo.Dialect{
		Merge:       md,
		Placeholder: func(int) string { return "?" },
		Upsert:      func(s merge.Spec) string { return upsert(md, s) },
		InsertRunSQL: "INSERT INTO etl_log (process_name, start_time, status)" +
			" VALUES (?, ?, ?)",
		UpdateRunSQL: "UPDATE etl_log SET end_time = ?, duration_sec = ?," +
			" status = ?, log_message = ? WHERE log_id = ?",
		IsUniqueViolation: isUniqueViolation,
		MaxParams:         60000,
	}
}

// upsert renders INSERT ... SELECT ... ON DUPLICATE KEY UPDATE. The unique
// constraint on the business key makes the duplicate-key branch equivalent to
// a keyed conflict target.
func upsert(d merge.Dialect, s merge.Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) %s",
		d.QuoteIdent(s.Target), d.InsertColumns(s), d.UpsertSource(s))

	b.WriteString(" ON DUPLICATE KEY UPDATE ")
	sets := make([]string, 0, len(s.Columns))
	for _, c := range s.NonKeyColumns() {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", d.QuoteIdent(c), d.QuoteIdent(c)))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdent(merge.UpdatedAt), d.Now))
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

func isUniqueViolation(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == dupEntryCode
}

// Open validates dsn, forces parseTime so temporal columns scan as time.Time,
// and pings the server.
func Open(ctx context.Context, dsn string) (*sqlrepo.DB, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping: %w", err)
	}
	return sqlrepo.New(db, Dialect()), nil
}

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
	storage.RegisterDDL("mysql", EnsureSchema)
}
