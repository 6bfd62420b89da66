package storage

import (
	"strings"
	"testing"

	"dwetl/internal/config"
)

func planWarehouse() config.Warehouse {
	return config.Warehouse{
		Tables: []config.Table{
			{
				Name:         "crm_prd_info",
				BusinessKeys: []string{"prd_key"},
				Columns:      []string{"prd_key", "prd_nm", "prd_cost", "prd_start_dt"},
				Cleanse: &config.Cleanse{
					Types: map[string]string{
						"prd_cost":     "float",
						"prd_start_dt": "date",
					},
				},
			},
			{
				Name:         "erp_px_cat_g1v2",
				BusinessKeys: []string{"id"},
				Columns:      []string{"id", "cat"},
			},
		},
		Dimensions: []config.Dimension{
			{
				Name:        "products",
				SourceTable: "crm_prd_info",
				BusinessKey: "prd_key",
				StartColumn: "prd_start_dt",
				EndColumn:   "prd_end_dt",
				Attributes:  []string{"prd_nm", "prd_cost"},
			},
		},
		Facts: []config.Fact{
			{
				Name:        "sales",
				SourceTable: "crm_prd_info",
				Dimension:   "products",
				KeyColumn:   "prd_key",
				TimeColumn:  "order_dt",
				Measures:    []string{"amount"},
			},
		},
	}
}

func defByName(t *testing.T, defs []TableDef, name string) TableDef {
	t.Helper()
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("no table %q in plan; have %v", name, defs)
	return TableDef{}
}

func colKind(t *testing.T, def TableDef, name string) Kind {
	t.Helper()
	for _, c := range def.Columns {
		if c.Name == name {
			return c.Kind
		}
	}
	t.Fatalf("no column %q in %q", name, def.Name)
	return ""
}

func TestSchemaPlanTableSet(t *testing.T) {
	t.Parallel()

	defs := SchemaPlan(planWarehouse())

	want := []string{
		"stg_crm_prd_info", "raw_crm_prd_info", "slv_crm_prd_info",
		"stg_erp_px_cat_g1v2", "raw_erp_px_cat_g1v2",
		"dim_products", "fct_sales", LedgerTableName,
	}
	if len(defs) != len(want) {
		t.Fatalf("plan has %d tables; want %d", len(defs), len(want))
	}
	for _, name := range want {
		defByName(t, defs, name)
	}
	// No typed container without a cleanse section.
	for _, d := range defs {
		if d.Name == "slv_erp_px_cat_g1v2" {
			t.Error("typed container planned for table without cleanse")
		}
	}
}

func TestSchemaPlanLanding(t *testing.T) {
	t.Parallel()

	def := defByName(t, SchemaPlan(planWarehouse()), "stg_crm_prd_info")
	if len(def.Unique) != 0 {
		t.Errorf("landing has unique constraint: %v", def.Unique)
	}
	for _, c := range []string{"prd_key", "prd_nm", "prd_cost", "prd_start_dt"} {
		if k := colKind(t, def, c); k != KindText {
			t.Errorf("landing column %s kind = %s; want text", c, k)
		}
	}
	if k := colKind(t, def, "_line"); k != KindInt {
		t.Errorf("_line kind = %s; want int", k)
	}
}

func TestSchemaPlanTarget(t *testing.T) {
	t.Parallel()

	def := defByName(t, SchemaPlan(planWarehouse()), "raw_crm_prd_info")
	if len(def.Unique) != 1 || def.Unique[0] != "prd_key" {
		t.Errorf("target unique = %v; want [prd_key]", def.Unique)
	}
	if k := colKind(t, def, "created_at"); k != KindTimestamp {
		t.Errorf("created_at kind = %s", k)
	}
	if k := colKind(t, def, "updated_at"); k != KindTimestamp {
		t.Errorf("updated_at kind = %s", k)
	}
}

func TestSchemaPlanTyped(t *testing.T) {
	t.Parallel()

	def := defByName(t, SchemaPlan(planWarehouse()), "slv_crm_prd_info")
	if k := colKind(t, def, "prd_cost"); k != KindFloat {
		t.Errorf("prd_cost kind = %s; want float", k)
	}
	if k := colKind(t, def, "prd_start_dt"); k != KindDate {
		t.Errorf("prd_start_dt kind = %s; want date", k)
	}
	// Columns absent from the type map stay text.
	if k := colKind(t, def, "prd_nm"); k != KindText {
		t.Errorf("prd_nm kind = %s; want text", k)
	}
}

func TestSchemaPlanDimension(t *testing.T) {
	t.Parallel()

	def := defByName(t, SchemaPlan(planWarehouse()), "dim_products")
	if k := colKind(t, def, "products_key"); k != KindInt {
		t.Errorf("surrogate kind = %s; want int", k)
	}
	if k := colKind(t, def, "prd_start_dt"); k != KindDate {
		t.Errorf("start kind = %s", k)
	}
	if k := colKind(t, def, "prd_end_dt"); k != KindDate {
		t.Errorf("end kind = %s", k)
	}
	// Attribute types come from the source table's cleanse map.
	if k := colKind(t, def, "prd_cost"); k != KindFloat {
		t.Errorf("prd_cost kind = %s; want float", k)
	}
	if len(def.Unique) != 1 || def.Unique[0] != "products_key" {
		t.Errorf("dimension unique = %v; want [products_key]", def.Unique)
	}
}

func TestSchemaPlanFact(t *testing.T) {
	t.Parallel()

	def := defByName(t, SchemaPlan(planWarehouse()), "fct_sales")
	if k := colKind(t, def, "products_key"); k != KindInt {
		t.Errorf("surrogate kind = %s; want int", k)
	}
	// Measures without a cleanse type default to float.
	if k := colKind(t, def, "amount"); k != KindFloat {
		t.Errorf("amount kind = %s; want float", k)
	}
}

func TestLedgerTable(t *testing.T) {
	t.Parallel()

	def := LedgerTable()
	if def.Name != "etl_log" || def.PrimaryKey != "log_id" {
		t.Errorf("ledger def = %+v", def)
	}
	if k := colKind(t, def, "log_id"); k != KindID {
		t.Errorf("log_id kind = %s; want id", k)
	}
	if k := colKind(t, def, "duration_sec"); k != KindFloat {
		t.Errorf("duration_sec kind = %s; want float", k)
	}
}

func testSyntax() DDLSyntax {
	return DDLSyntax{
		Quote: func(s string) string { return `"` + s + `"` },
		Types: map[Kind]string{
			KindID:        "BIGSERIAL PRIMARY KEY",
			KindText:      "TEXT",
			KindInt:       "BIGINT",
			KindFloat:     "DOUBLE PRECISION",
			KindBool:      "BOOLEAN",
			KindDate:      "DATE",
			KindTimestamp: "TIMESTAMPTZ",
		},
	}
}

func TestRenderDDL(t *testing.T) {
	t.Parallel()

	def := TableDef{
		Name: "raw_x",
		Columns: []ColumnDef{
			{Name: "k", Kind: KindText},
			{Name: "n", Kind: KindInt},
		},
		Unique: []string{"k"},
	}
	got := RenderDDL(def, testSyntax())
	want := `CREATE TABLE IF NOT EXISTS "raw_x" ("k" TEXT, "n" BIGINT, CONSTRAINT "uq_raw_x" UNIQUE ("k"))`
	if got != want {
		t.Errorf("RenderDDL =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderDDLGuard(t *testing.T) {
	t.Parallel()

	s := testSyntax()
	s.Guard = func(def TableDef, body string) string {
		return "IF MISSING " + def.Name + " (" + body + ")"
	}
	got := RenderDDL(TableDef{Name: "t", Columns: []ColumnDef{{Name: "c", Kind: KindText}}}, s)
	if got != `IF MISSING t ("c" TEXT)` {
		t.Errorf("guarded DDL = %s", got)
	}
}

func TestRenderSchemaDDLCoversPlan(t *testing.T) {
	t.Parallel()

	w := planWarehouse()
	stmts := RenderSchemaDDL(w, testSyntax())
	if len(stmts) != len(SchemaPlan(w)) {
		t.Fatalf("statements = %d; want one per planned table", len(stmts))
	}
	var ledger bool
	for _, s := range stmts {
		if strings.Contains(s, `"etl_log"`) {
			ledger = true
		}
	}
	if !ledger {
		t.Error("ledger DDL missing from rendered schema")
	}
}
