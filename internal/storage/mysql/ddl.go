package mysql

import (
	"context"
	"fmt"

	"dwetl/internal/config"
	"dwetl/internal/storage"
)

// MySQL types per planned column kind. Text columns are VARCHAR rather than
// TEXT because TEXT cannot participate in the business-key unique index
// without a prefix length.
var ddlTypes = map[storage.Kind]string{
	storage.KindID:        "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
	storage.KindText:      "VARCHAR(255)",
	storage.KindInt:       "BIGINT",
	storage.KindFloat:     "DOUBLE",
	storage.KindBool:      "TINYINT(1)",
	storage.KindDate:      "DATE",
	storage.KindTimestamp: "DATETIME(6)",
}

// EnsureSchema applies the warehouse schema plan as idempotent DDL.
func EnsureSchema(ctx context.Context, repo storage.Repository, w config.Warehouse) error {
	syntax := storage.DDLSyntax{Quote: quoteIdent, Types: ddlTypes}
	for _, stmt := range storage.RenderSchemaDDL(w, syntax) {
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("mysql ddl: %w", err)
		}
	}
	return nil
}
