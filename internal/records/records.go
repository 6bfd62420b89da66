// Package records defines the row representation shared by the bulk loader
// and the cleanse transformers. A Record maps column names to values; raw
// landing rows carry only strings, typed rows carry coerced Go values.
package records

// Record is one logical row keyed by column name.
type Record map[string]any

// String returns the value for col as a string, or "" when the value is
// missing, nil, or not a string.
func (r Record) String(col string) string {
	if v, ok := r[col]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
