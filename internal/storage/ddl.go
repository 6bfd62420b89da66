package storage

import (
	"fmt"
	"strings"

	"dwetl/internal/config"
)

// DDLSyntax is what a backend supplies to render a TableDef into DDL.
type DDLSyntax struct {
	// Quote quotes a single identifier.
	Quote func(string) string

	// Types maps column kinds to SQL types. The KindID entry carries the
	// complete identity column spec ("BIGSERIAL PRIMARY KEY" and friends).
	Types map[Kind]string

	// Guard wraps the rendered column body into a conditional CREATE. Nil
	// renders the common "CREATE TABLE IF NOT EXISTS" form.
	Guard func(def TableDef, body string) string
}

// RenderDDL renders one idempotent CREATE TABLE statement for def.
func RenderDDL(def TableDef, s DDLSyntax) string {
	parts := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		parts = append(parts, s.Quote(c.Name)+" "+s.Types[c.Kind])
	}
	if len(def.Unique) > 0 {
		quoted := make([]string, len(def.Unique))
		for i, c := range def.Unique {
			quoted[i] = s.Quote(c)
		}
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
			s.Quote("uq_"+def.Name), strings.Join(quoted, ", ")))
	}
	body := strings.Join(parts, ", ")

	if s.Guard != nil {
		return s.Guard(def, body)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.Quote(def.Name), body)
}

// RenderSchemaDDL renders the DDL for every table in the warehouse plan.
func RenderSchemaDDL(w config.Warehouse, s DDLSyntax) []string {
	defs := SchemaPlan(w)
	out := make([]string, len(defs))
	for i, def := range defs {
		out[i] = RenderDDL(def, s)
	}
	return out
}
