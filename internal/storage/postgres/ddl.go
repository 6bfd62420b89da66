package postgres

import (
	"context"
	"fmt"

	"dwetl/internal/config"
	"dwetl/internal/storage"
)

var ddlTypes = map[storage.Kind]string{
	storage.KindID:        "BIGSERIAL PRIMARY KEY",
	storage.KindText:      "TEXT",
	storage.KindInt:       "BIGINT",
	storage.KindFloat:     "DOUBLE PRECISION",
	storage.KindBool:      "BOOLEAN",
	storage.KindDate:      "DATE",
	storage.KindTimestamp: "TIMESTAMPTZ",
}

// EnsureSchema applies the warehouse schema plan as idempotent DDL.
func EnsureSchema(ctx context.Context, repo storage.Repository, w config.Warehouse) error {
	syntax := storage.DDLSyntax{Quote: quoteIdent, Types: ddlTypes}
	for _, stmt := range storage.RenderSchemaDDL(w, syntax) {
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres ddl: %w", err)
		}
	}
	return nil
}
