// Package config defines the canonical, JSON-serializable configuration model
// for the warehouse loader. It is intentionally small and explicit so that a
// warehouse definition can be loaded from disk and passed through the program
// without additional glue code.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: field names in Go mirror the JSON structure used in warehouse
//     files under configs/*.json.
//  3. Immutability in use: the model is constructed once at process entry and
//     handed to the orchestrator; core logic never reads ambient environment
//     state.
//
// Example (trimmed):
//
//	{
//	  "process": "warehouse_load",
//	  "storage": { "kind": "mysql", "dsn": "${DB_DSN}" },
//	  "fault_policy": "continue",
//	  "tables": [
//	    {
//	      "name": "crm_cust_info",
//	      "business_keys": ["cst_id"],
//	      "columns": ["cst_id", "cst_key", "cst_firstname"],
//	      "source": { "path": "data/cust_info.csv", "delimiter": ",", "skip_rows": 1 }
//	    }
//	  ]
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Fault policies for the per-table bronze stage.
const (
	// FaultContinue records a failed table and proceeds to the next one.
	FaultContinue = "continue"
	// FaultAbort records the failure and stops the remaining run.
	FaultAbort = "abort"
)

// Warehouse is the top-level configuration decoded from a warehouse file.
type Warehouse struct {
	// Process names the orchestrated run in the run ledger, e.g.
	// "warehouse_load". Also used as the metrics job label.
	Process string `json:"process"`

	// Storage selects and configures the database backend.
	Storage Storage `json:"storage"`

	// FaultPolicy is "continue" (default) or "abort"; it governs whether a
	// failed table unit stops the remaining per-table work.
	FaultPolicy string `json:"fault_policy"`

	// AutoCreate provisions landing/target/typed/gold/ledger tables at run
	// start. One-time setup convenience; production deployments normally
	// manage DDL externally.
	AutoCreate bool `json:"auto_create"`

	// Tables lists the source extracts to load, in execution order.
	Tables []Table `json:"tables"`

	// Dimensions lists the versioned dimensions built by the gold stage.
	Dimensions []Dimension `json:"dimensions"`

	// Facts lists the fact tables whose dimension references are resolved by
	// the gold stage.
	Facts []Fact `json:"facts"`

	// Runtime controls batching and buffering for the streaming bulk loader.
	Runtime Runtime `json:"runtime"`
}

// Storage selects the database backend that holds all layers plus the ledger.
type Storage struct {
	// Kind selects the backend: "postgres", "mysql", "mssql", or "sqlite".
	Kind string `json:"kind"`

	// DSN is the backend connection string. ${VAR} references are expanded
	// from the environment by ExpandDSN so credentials stay out of the file.
	DSN string `json:"dsn"`
}

// Table describes one source extract and its layered destinations.
type Table struct {
	// Name is the base table name; layer tables derive from it (see
	// Landing/Target/Typed).
	Name string `json:"name"`

	// BusinessKeys are the column(s) uniquely identifying an entity in the
	// target container. The merge contract is keyed by them.
	BusinessKeys []string `json:"business_keys"`

	// Columns enumerates the source columns in file order. The landing and
	// target containers carry exactly these (all maximally permissive text),
	// plus audit/bookkeeping columns added by the loader.
	Columns []string `json:"columns"`

	// Source describes the delimited extract file.
	Source Source `json:"source"`

	// Cleanse configures the typed/cleansed (silver) projection of this
	// table. When absent the table stops at the raw constrained layer.
	Cleanse *Cleanse `json:"cleanse,omitempty"`
}

// Source is the bulk-copy format contract for one extract file.
type Source struct {
	Path string `json:"path"`

	// Delimiter is a single-character field separator; "," when empty.
	Delimiter string `json:"delimiter"`

	// Quote is the optional enclosing character; `"` when empty. The reader
	// only parses double-quoted fields, so Validate rejects any other value.
	Quote string `json:"quote"`

	// LineTerminator is accepted for contract completeness; the reader
	// tolerates both \n and \r\n regardless.
	LineTerminator string `json:"line_terminator"`

	// SkipRows is the number of header rows to skip (commonly 1).
	SkipRows int `json:"skip_rows"`

	// Dedup enables the in-memory keep-last pre-dedup in the bulk loader.
	// The merge performs the authoritative last-line-wins collapse either
	// way; this only reduces landing write volume.
	Dedup bool `json:"dedup"`
}

// Cleanse configures the typed projection built by the silver stage.
type Cleanse struct {
	// Types maps column name -> "int" | "float" | "bool" | "date" | "string".
	// Unlisted columns pass through as text.
	Types map[string]string `json:"types"`

	// Layout is the date layout for "date" columns (Go reference time), e.g.
	// "20060102" for the original extracts' integer dates.
	Layout string `json:"layout"`

	// Required lists columns that must be non-empty after coercion; rows
	// missing one are dropped from the typed layer (and counted).
	Required []string `json:"required"`

	// FoldDiacritics folds accented characters to their base form during
	// normalization. For sources known to mix encodings of the same names.
	FoldDiacritics bool `json:"fold_diacritics"`
}

// Dimension describes a versioned (SCD type 2) dimension built from a typed
// table by the gold stage.
type Dimension struct {
	// Name is the gold dimension name; the container is "dim_" + Name.
	Name string `json:"name"`

	// SourceTable is the typed table the versions are read from.
	SourceTable string `json:"source_table"`

	// BusinessKey is the column identifying the entity across versions.
	BusinessKey string `json:"business_key"`

	// StartColumn/EndColumn hold each version's validity interval. End values
	// may be null (open-ended) or corrupt (earlier than start); the resolver
	// corrects them.
	StartColumn string `json:"start_column"`
	EndColumn   string `json:"end_column"`

	// Attributes are the descriptive columns carried onto the dimension.
	Attributes []string `json:"attributes"`
}

// Fact policies for unresolvable dimension references.
const (
	// UnresolvedUnknown assigns the unknown surrogate (version key 0).
	UnresolvedUnknown = "unknown"
	// UnresolvedError fails the gold unit on the first unresolvable row.
	UnresolvedError = "error"
)

// Fact describes a fact table whose dimension reference is resolved to the
// version valid at the fact's event time.
type Fact struct {
	// Name is the gold fact name; the container is "fct_" + Name.
	Name string `json:"name"`

	// SourceTable is the typed table fact rows are read from.
	SourceTable string `json:"source_table"`

	// Dimension names the Dimension this fact references.
	Dimension string `json:"dimension"`

	// KeyColumn holds the referenced business key; TimeColumn holds the
	// event timestamp used for point-in-time resolution.
	KeyColumn  string `json:"key_column"`
	TimeColumn string `json:"time_column"`

	// Measures are the fact columns carried onto the gold container.
	Measures []string `json:"measures"`

	// OnUnresolved is "unknown" (default) or "error".
	OnUnresolved string `json:"on_unresolved"`
}

// Runtime controls batching for the streaming bulk loader.
type Runtime struct {
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Layer-table naming. The prefixes are fixed across backends so that ledger
// entries and ad-hoc queries read the same everywhere.
const (
	landingPrefix = "stg_"
	targetPrefix  = "raw_"
	typedPrefix   = "slv_"
	dimPrefix     = "dim_"
	factPrefix    = "fct_"
)

// Landing returns the unconstrained landing container name for t.
func (t Table) Landing() string { return landingPrefix + t.Name }

// Target returns the constrained target container name for t.
func (t Table) Target() string { return targetPrefix + t.Name }

// Typed returns the typed/cleansed container name for t.
func (t Table) Typed() string { return typedPrefix + t.Name }

// Container returns the gold dimension container name for d.
func (d Dimension) Container() string { return dimPrefix + d.Name }

// Container returns the gold fact container name for f.
func (f Fact) Container() string { return factPrefix + f.Name }

// Load decodes a Warehouse from the JSON file at path.
func Load(path string) (Warehouse, error) {
	f, err := os.Open(path)
	if err != nil {
		return Warehouse{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var w Warehouse
	if err := json.NewDecoder(f).Decode(&w); err != nil {
		return Warehouse{}, fmt.Errorf("decode config: %w", err)
	}
	return w, nil
}

// ExpandDSN resolves ${VAR} references in the storage DSN from the process
// environment. Called once by the CLI; core packages receive the expanded
// value and never touch the environment themselves.
func (w Warehouse) ExpandDSN() Warehouse {
	w.Storage.DSN = os.ExpandEnv(w.Storage.DSN)
	return w
}

// DimensionByName returns the dimension named n, if present.
func (w Warehouse) DimensionByName(n string) (Dimension, bool) {
	for _, d := range w.Dimensions {
		if d.Name == n {
			return d, true
		}
	}
	return Dimension{}, false
}
