// Package transform implements the type/cleanse stage: mapping raw
// string-typed rows into typed, trimmed, normalized rows for the typed
// (silver) layer. Transformers are small, composable, and operate in-place
// on batches of records.
package transform

import "dwetl/internal/records"

// Transformer mutates or filters a batch of records.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Chain is an ordered list of transformers applied in sequence.
type Chain []Transformer

func (c Chain) Apply(in []records.Record) []records.Record {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}
