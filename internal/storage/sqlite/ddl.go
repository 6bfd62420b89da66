package sqlite

import (
	"context"
	"fmt"

	"dwetl/internal/config"
	"dwetl/internal/storage"
)

// SQLite type affinities per planned column kind. Temporal kinds are stored
// as text; reads go through the storage value coercion helpers.
var ddlTypes = map[storage.Kind]string{
	storage.KindID:        "INTEGER PRIMARY KEY AUTOINCREMENT",
	storage.KindText:      "TEXT",
	storage.KindInt:       "INTEGER",
	storage.KindFloat:     "REAL",
	storage.KindBool:      "INTEGER",
	storage.KindDate:      "TEXT",
	storage.KindTimestamp: "TEXT",
}

// EnsureSchema applies the warehouse schema plan as idempotent DDL.
func EnsureSchema(ctx context.Context, repo storage.Repository, w config.Warehouse) error {
	syntax := storage.DDLSyntax{Quote: quoteIdent, Types: ddlTypes}
	for _, stmt := range storage.RenderSchemaDDL(w, syntax) {
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite ddl: %w", err)
		}
	}
	return nil
}
