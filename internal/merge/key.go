package merge

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// Key is a 128-bit hash of a business key, used by the bulk loader's
// in-memory pre-dedup to track seen keys without retaining the strings.
type Key = xxh3.Uint128

// HashKey hashes the ordered business-key values of one row. Values are
// joined with an unlikely separator so ("a","bc") and ("ab","c") differ.
func HashKey(vals []string) Key {
	return xxh3.HashString128(strings.Join(vals, "\x1f"))
}

// KeyEmpty reports whether any business-key value is empty after trimming,
// mirroring the SQL eligibility predicate.
func KeyEmpty(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
