// Package mssql provides a SQL Server-backed storage.Repository using
// microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssqldrv "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"dwetl/internal/merge"
	"dwetl/internal/storage"
	"dwetl/internal/storage/sqlrepo"
)

func quoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// Dialect returns the SQL Server sqlrepo dialect.
func Dialect() sqlrepo.Dialect {
	md := merge.Dialect{QuoteIdent: quoteIdent, Now: "SYSDATETIME()"}
	return sqlrepo.Dialect{
		Merge:       md,
		Placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) },
		Upsert:      func(s merge.Spec) string { return upsert(md, s) },
		InsertRunSQL: "INSERT INTO etl_log (process_name, start_time, status)" +
			" OUTPUT INSERTED.log_id VALUES (@p1, @p2, @p3)",
		ScanInsertID: true,
		UpdateRunSQL: "UPDATE etl_log SET end_time = @p1, duration_sec = @p2," +
			" status = @p3, log_message = @p4 WHERE log_id = @p5",
		IsUniqueViolation: isUniqueViolation,
		MaxParams:         2000,
	}
}

// upsert renders a keyed MERGE. HOLDLOCK serializes concurrent merges into
// the same target so the match phase and the insert phase see one snapshot.
func upsert(d merge.Dialect, s merge.Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS t USING (%s) AS s ON ",
		d.QuoteIdent(s.Target), d.SourceSelect(s))

	on := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		on[i] = fmt.Sprintf("t.%s = s.%s", d.QuoteIdent(k), d.QuoteIdent(k))
	}
	b.WriteString(strings.Join(on, " AND "))

	sets := make([]string, 0, len(s.Columns))
	for _, c := range s.NonKeyColumns() {
		sets = append(sets, fmt.Sprintf("t.%s = s.%s", d.QuoteIdent(c), d.QuoteIdent(c)))
	}
	sets = append(sets, fmt.Sprintf("t.%s = %s", d.QuoteIdent(merge.UpdatedAt), d.Now))
	fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))

	vals := make([]string, 0, len(s.Columns)+2)
	for _, c := range s.Columns {
		vals = append(vals, "s."+d.QuoteIdent(c))
	}
	vals = append(vals, d.Now, d.Now)
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		d.InsertColumns(s), strings.Join(vals, ", "))
	return b.String()
}

// 2627: unique constraint violation; 2601: duplicate key in unique index.
func isUniqueViolation(err error) bool {
	var me mssqldrv.Error
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == 2627 || me.Number == 2601
}

// Open validates dsn via msdsn and pings the server.
func Open(ctx context.Context, dsn string) (*sqlrepo.DB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mssql ping: %w", err)
	}
	return sqlrepo.New(db, Dialect()), nil
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return Open(ctx, cfg.DSN)
	})
	storage.RegisterDDL("mssql", EnsureSchema)
}
