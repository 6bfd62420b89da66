package transform

import "dwetl/internal/records"

// Require removes records missing a value for any of the listed columns.
// Dropped counts are reported through the optional callback.
type Require struct {
	Columns []string

	// OnDrop, when set, is called once per dropped record with the first
	// missing column.
	OnDrop func(rec records.Record, missing string)
}

func (q Require) Apply(in []records.Record) []records.Record {
	if len(q.Columns) == 0 {
		return in
	}
	out := in[:0]
	for _, rec := range in {
		missing := ""
		for _, col := range q.Columns {
			v, exists := rec[col]
			if !exists || v == nil || v == "" {
				missing = col
				break
			}
		}
		if missing != "" {
			if q.OnDrop != nil {
				q.OnDrop(rec, missing)
			}
			continue
		}
		out = append(out, rec)
	}
	return out
}
