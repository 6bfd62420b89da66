package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"dwetl/internal/records"
)

// Normalize trims surrounding whitespace, scrubs non-breaking spaces, and
// optionally folds diacritics so downstream comparisons and keys behave
// predictably across source systems.
type Normalize struct {
	// FoldDiacritics replaces accented characters with their base form
	// ("Křižík" -> "Krizik"). Off by default; enable for sources known to
	// mix encodings of the same names.
	FoldDiacritics bool
}

// foldChain decomposes to NFD, drops combining marks, and recomposes to NFC.
var foldChain = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func (n Normalize) Apply(in []records.Record) []records.Record {
	for _, r := range in {
		for k, v := range r {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.ReplaceAll(s, "\u00a0", " ")
			s = strings.TrimSpace(s)
			if n.FoldDiacritics {
				if folded, _, err := transform.String(foldChain, s); err == nil {
					s = folded
				}
			}
			r[k] = s
		}
	}
	return in
}
