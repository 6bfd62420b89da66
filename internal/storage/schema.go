package storage

import "dwetl/internal/config"

// Column kinds in the backend-neutral schema plan. Backends map them onto
// their own SQL types when rendering DDL.
type Kind string

const (
	KindID        Kind = "id" // auto-incrementing 64-bit identity
	KindText      Kind = "text"
	KindInt       Kind = "int"
	KindFloat     Kind = "float"
	KindBool      Kind = "bool"
	KindDate      Kind = "date"
	KindTimestamp Kind = "timestamp"
)

// ColumnDef is one column of a planned table.
type ColumnDef struct {
	Name string
	Kind Kind
}

// TableDef is one planned table: its columns, the optional unique business
// key, and the optional identity primary key.
type TableDef struct {
	Name       string
	Columns    []ColumnDef
	Unique     []string // composite unique constraint columns ("" = none)
	PrimaryKey string   // name of the KindID column, "" when absent
}

// LedgerTableName is the run ledger table created alongside the layers.
const LedgerTableName = "etl_log"

// SchemaPlan derives the full warehouse schema from the configuration:
// landing and constrained containers per table, typed containers for tables
// with a cleanse projection, gold dimension and fact containers, and the run
// ledger. The plan is backend-neutral; each backend renders it into DDL.
func SchemaPlan(w config.Warehouse) []TableDef {
	var defs []TableDef

	for _, t := range w.Tables {
		defs = append(defs, landingDef(t), targetDef(t))
		if t.Cleanse != nil {
			defs = append(defs, typedDef(t))
		}
	}
	for _, d := range w.Dimensions {
		defs = append(defs, dimensionDef(w, d))
	}
	for _, f := range w.Facts {
		defs = append(defs, factDef(w, f))
	}
	defs = append(defs, LedgerTable())
	return defs
}

// landingDef plans the unconstrained landing container: every source column
// as maximally permissive text plus the bookkeeping line number.
func landingDef(t config.Table) TableDef {
	cols := make([]ColumnDef, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		cols = append(cols, ColumnDef{Name: c, Kind: KindText})
	}
	cols = append(cols, ColumnDef{Name: "_line", Kind: KindInt})
	return TableDef{Name: t.Landing(), Columns: cols}
}

// targetDef plans the constrained container: text columns, audit timestamps,
// and a unique constraint on the business key.
func targetDef(t config.Table) TableDef {
	cols := make([]ColumnDef, 0, len(t.Columns)+2)
	for _, c := range t.Columns {
		cols = append(cols, ColumnDef{Name: c, Kind: KindText})
	}
	cols = append(cols,
		ColumnDef{Name: "created_at", Kind: KindTimestamp},
		ColumnDef{Name: "updated_at", Kind: KindTimestamp},
	)
	return TableDef{Name: t.Target(), Columns: cols, Unique: t.BusinessKeys}
}

// typedDef plans the typed (silver) container using the cleanse type map;
// unlisted columns stay text.
func typedDef(t config.Table) TableDef {
	cols := make([]ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, ColumnDef{Name: c, Kind: cleanseKind(t.Cleanse, c)})
	}
	return TableDef{Name: t.Typed(), Columns: cols}
}

// dimensionDef plans the versioned dimension container: surrogate version
// key, business key, validity interval, and the configured attributes typed
// per the source table's cleanse map.
func dimensionDef(w config.Warehouse, d config.Dimension) TableDef {
	cols := []ColumnDef{
		{Name: d.Name + "_key", Kind: KindInt},
		{Name: d.BusinessKey, Kind: KindText},
		{Name: d.StartColumn, Kind: KindDate},
		{Name: d.EndColumn, Kind: KindDate},
	}
	cl := cleanseFor(w, d.SourceTable)
	for _, a := range d.Attributes {
		cols = append(cols, ColumnDef{Name: a, Kind: cleanseKind(cl, a)})
	}
	return TableDef{Name: d.Container(), Columns: cols, Unique: []string{d.Name + "_key"}}
}

// factDef plans the resolved fact container: the dimension surrogate, the
// original business key kept for lineage, the event time, and the measures.
func factDef(w config.Warehouse, f config.Fact) TableDef {
	cols := []ColumnDef{
		{Name: f.Dimension + "_key", Kind: KindInt},
		{Name: f.KeyColumn, Kind: KindText},
		{Name: f.TimeColumn, Kind: KindDate},
	}
	cl := cleanseFor(w, f.SourceTable)
	for _, m := range f.Measures {
		k := cleanseKind(cl, m)
		if k == KindText {
			k = KindFloat // measures default numeric
		}
		cols = append(cols, ColumnDef{Name: m, Kind: k})
	}
	return TableDef{Name: f.Container(), Columns: cols}
}

// LedgerTable plans the run ledger table.
func LedgerTable() TableDef {
	return TableDef{
		Name: LedgerTableName,
		Columns: []ColumnDef{
			{Name: "log_id", Kind: KindID},
			{Name: "process_name", Kind: KindText},
			{Name: "start_time", Kind: KindTimestamp},
			{Name: "end_time", Kind: KindTimestamp},
			{Name: "duration_sec", Kind: KindFloat},
			{Name: "status", Kind: KindText},
			{Name: "log_message", Kind: KindText},
		},
		PrimaryKey: "log_id",
	}
}

func cleanseFor(w config.Warehouse, table string) *config.Cleanse {
	for _, t := range w.Tables {
		if t.Name == table {
			return t.Cleanse
		}
	}
	return nil
}

func cleanseKind(cl *config.Cleanse, col string) Kind {
	if cl == nil {
		return KindText
	}
	switch cl.Types[col] {
	case "int":
		return KindInt
	case "float":
		return KindFloat
	case "bool":
		return KindBool
	case "date":
		return KindDate
	default:
		return KindText
	}
}
