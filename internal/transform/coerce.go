package transform

import (
	"strconv"
	"strings"
	"time"

	"dwetl/internal/records"
)

// Coerce converts string values into typed Go values per the configured
// column types. Values that fail to parse become nil rather than aborting
// the batch; the Require step (or the typed table's constraints) decides
// whether that is fatal for the row.
type Coerce struct {
	Types  map[string]string // column -> "int" | "float" | "bool" | "date" | "string"
	Layout string            // date layout, e.g. "20060102" or "2006-01-02"
}

func (c Coerce) Apply(in []records.Record) []records.Record {
	if len(c.Types) == 0 {
		return in
	}
	layout := c.Layout
	if layout == "" {
		layout = "2006-01-02"
	}
	for _, r := range in {
		for col, typ := range c.Types {
			v, ok := r[col]
			if !ok || v == nil {
				continue
			}
			s, isStr := v.(string)
			if !isStr {
				continue
			}
			s = strings.TrimSpace(s)
			if s == "" {
				r[col] = nil
				continue
			}
			switch typ {
			case "int":
				if i, err := strconv.ParseInt(s, 10, 64); err == nil {
					r[col] = i
				} else {
					r[col] = nil
				}
			case "float":
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					r[col] = f
				} else {
					r[col] = nil
				}
			case "bool":
				if b, err := strconv.ParseBool(s); err == nil {
					r[col] = b
				} else {
					r[col] = nil
				}
			case "date":
				if t, err := time.Parse(layout, s); err == nil {
					r[col] = t
				} else {
					r[col] = nil
				}
			case "string":
				r[col] = s
			}
		}
	}
	return in
}
