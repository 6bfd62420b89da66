// Static validation for decoded Warehouse values: checks return a list of
// issues (errors and warnings) that callers can surface in a CLI or tests.

package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Warehouse.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "tables[1].business_keys"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var knownStorageKinds = map[string]bool{
	"postgres": true,
	"mysql":    true,
	"mssql":    true,
	"sqlite":   true,
}

// Validate performs static validation / linting of a Warehouse.
//
// It does not mutate the config. Instead it returns a slice of Issue values;
// callers decide whether to treat warnings as fatal.
func Validate(w Warehouse) []Issue {
	var issues []Issue

	if strings.TrimSpace(w.Process) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "process",
			Message:  "process must not be empty; it names runs in the ledger and labels metrics",
		})
	}

	switch w.FaultPolicy {
	case "", FaultContinue, FaultAbort:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "fault_policy",
			Message:  fmt.Sprintf("unknown fault_policy %q (want %q or %q)", w.FaultPolicy, FaultContinue, FaultAbort),
		})
	}

	issues = append(issues, validateStorage(w.Storage)...)

	if len(w.Tables) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "tables",
			Message:  "no tables configured; the run will only bracket the ledger",
		})
	}
	names := map[string]int{}
	for i, t := range w.Tables {
		issues = append(issues, validateTable(i, t)...)
		if prev, dup := names[t.Name]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("tables[%d].name", i),
				Message:  fmt.Sprintf("duplicate table name %q (also tables[%d])", t.Name, prev),
			})
		}
		names[t.Name] = i
	}

	for i, d := range w.Dimensions {
		issues = append(issues, validateDimension(i, d)...)
	}
	for i, f := range w.Facts {
		issues = append(issues, validateFact(w, i, f)...)
	}

	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	} else if !knownStorageKinds[s.Kind] {
		// Unknown kinds are warnings: a custom backend may be registered.
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage.kind %q; built-in kinds are postgres, mysql, mssql, sqlite", s.Kind),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	return issues
}

func validateTable(i int, t Table) []Issue {
	var issues []Issue
	path := func(f string) string { return fmt.Sprintf("tables[%d].%s", i, f) }

	if strings.TrimSpace(t.Name) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("name"), Message: "table name must not be empty"})
	}
	if len(t.Columns) == 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("columns"), Message: "at least one column is required"})
	}
	if len(t.BusinessKeys) == 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("business_keys"), Message: "at least one business key column is required for the merge"})
	}
	cols := map[string]bool{}
	for _, c := range t.Columns {
		cols[c] = true
	}
	for _, k := range t.BusinessKeys {
		if !cols[k] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path("business_keys"),
				Message:  fmt.Sprintf("business key %q is not listed in columns", k),
			})
		}
	}
	if strings.TrimSpace(t.Source.Path) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("source.path"), Message: "source.path must not be empty"})
	}
	if len(t.Source.Delimiter) > 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path("source.delimiter"),
			Message:  fmt.Sprintf("delimiter must be a single character, got %q", t.Source.Delimiter),
		})
	}
	if q := t.Source.Quote; q != "" && q != `"` {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path("source.quote"),
			Message:  fmt.Sprintf(`quote must be " when set, got %q; the reader only parses double-quoted fields`, q),
		})
	}
	if t.Source.SkipRows < 0 {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("source.skip_rows"), Message: "skip_rows must not be negative"})
	}
	if t.Cleanse != nil {
		for c := range t.Cleanse.Types {
			if !cols[c] {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path("cleanse.types"),
					Message:  fmt.Sprintf("typed column %q is not listed in columns", c),
				})
			}
		}
	}
	return issues
}

func validateDimension(i int, d Dimension) []Issue {
	var issues []Issue
	path := func(f string) string { return fmt.Sprintf("dimensions[%d].%s", i, f) }

	if strings.TrimSpace(d.Name) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("name"), Message: "dimension name must not be empty"})
	}
	if strings.TrimSpace(d.SourceTable) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("source_table"), Message: "source_table must not be empty"})
	}
	if strings.TrimSpace(d.BusinessKey) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("business_key"), Message: "business_key must not be empty"})
	}
	if strings.TrimSpace(d.StartColumn) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("start_column"), Message: "start_column must not be empty"})
	}
	if strings.TrimSpace(d.EndColumn) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("end_column"), Message: "end_column must not be empty"})
	}
	return issues
}

func validateFact(w Warehouse, i int, f Fact) []Issue {
	var issues []Issue
	path := func(s string) string { return fmt.Sprintf("facts[%d].%s", i, s) }

	if strings.TrimSpace(f.Name) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("name"), Message: "fact name must not be empty"})
	}
	if strings.TrimSpace(f.SourceTable) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("source_table"), Message: "source_table must not be empty"})
	}
	if _, ok := w.DimensionByName(f.Dimension); !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path("dimension"),
			Message:  fmt.Sprintf("fact references unknown dimension %q", f.Dimension),
		})
	}
	if strings.TrimSpace(f.KeyColumn) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("key_column"), Message: "key_column must not be empty"})
	}
	if strings.TrimSpace(f.TimeColumn) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path("time_column"), Message: "time_column must not be empty"})
	}
	switch f.OnUnresolved {
	case "", UnresolvedUnknown, UnresolvedError:
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path("on_unresolved"),
			Message:  fmt.Sprintf("unknown on_unresolved %q (want %q or %q)", f.OnUnresolved, UnresolvedUnknown, UnresolvedError),
		})
	}
	return issues
}
