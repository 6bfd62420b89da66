package mssql

import (
	"context"
	"fmt"
	"strings"

	"dwetl/internal/config"
	"dwetl/internal/storage"
)

var ddlTypes = map[storage.Kind]string{
	storage.KindID:        "BIGINT IDENTITY(1,1) PRIMARY KEY",
	storage.KindText:      "NVARCHAR(255)",
	storage.KindInt:       "BIGINT",
	storage.KindFloat:     "FLOAT",
	storage.KindBool:      "BIT",
	storage.KindDate:      "DATE",
	storage.KindTimestamp: "DATETIME2",
}

// guard renders the conditional create; SQL Server has no CREATE TABLE IF
// NOT EXISTS.
func guard(def storage.TableDef, body string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(def.Name, "'", "''"), quoteIdent(def.Name), body)
}

// EnsureSchema applies the warehouse schema plan as idempotent DDL.
func EnsureSchema(ctx context.Context, repo storage.Repository, w config.Warehouse) error {
	syntax := storage.DDLSyntax{Quote: quoteIdent, Types: ddlTypes, Guard: guard}
	for _, stmt := range storage.RenderSchemaDDL(w, syntax) {
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("mssql ddl: %w", err)
		}
	}
	return nil
}
