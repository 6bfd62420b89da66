// Package scd implements the temporal resolution core for slowly changing
// (type 2) dimensions: correcting invalid validity intervals on versioned
// rows, and resolving a fact's event time to the dimension version that was
// valid at that moment.
//
// Both algorithms are pure: they operate on in-memory Version slices and
// leave reading/writing containers to the caller.
package scd

import (
	"fmt"
	"sort"
	"time"
)

// UnknownSurrogate is the surrogate reference assigned to facts whose event
// time is covered by no dimension version (the key is absent, or the event
// predates every recorded version).
const UnknownSurrogate int64 = 0

// Day is the default validity time unit: corrected end dates close one day
// before the successor version starts.
const Day = 24 * time.Hour

// Version is one time-bounded version of a dimension entity.
type Version struct {
	// Key is the business key shared by all versions of the entity.
	Key string

	// Start is the validity start. End is nil for the currently valid
	// (open-ended) version. Source extracts are known to carry corrupt End
	// values earlier than Start; CorrectIntervals repairs those.
	Start time.Time
	End   *time.Time

	// Surrogate is the version's surrogate key, assigned by CorrectIntervals
	// (1-based, in corrected order). Zero is reserved for UnknownSurrogate.
	Surrogate int64

	// Row is an opaque caller index (e.g. position in the source result set)
	// carried through correction untouched.
	Row int
}

// IntegrityError reports a data-integrity defect the resolver refuses to
// repair silently: duplicate start dates within a key, or an event time
// covered by more than one interval. It indicates an upstream data problem.
type IntegrityError struct {
	Key    string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("dimension key %q: %s", e.Key, e.Reason)
}

// CorrectIntervals orders versions per business key by ascending start date
// and repairs invalid end dates: an End earlier than its own Start is
// replaced by (next version's Start minus step) when a successor exists, and by
// nil (open-ended) on the last version. Valid end dates are left untouched.
//
// Two versions of one key sharing a start date cannot be ordered and are
// rejected with *IntegrityError.
//
// The returned slice is sorted by (Key, Start) and carries 1-based surrogate
// keys in that order. The input slice is not modified.
func CorrectIntervals(versions []Version, step time.Duration) ([]Version, error) {
	if step <= 0 {
		step = Day
	}

	out := make([]Version, len(versions))
	copy(out, versions)

	// Stable sort keeps input order for equal keys+starts so the duplicate
	// check below reports deterministically.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Start.Before(out[j].Start)
	})

	for i := range out {
		if i > 0 && out[i].Key == out[i-1].Key && out[i].Start.Equal(out[i-1].Start) {
			return nil, &IntegrityError{
				Key:    out[i].Key,
				Reason: fmt.Sprintf("two versions share start date %s; cannot order the partition", out[i].Start.Format("2006-01-02")),
			}
		}

		invalid := out[i].End != nil && out[i].End.Before(out[i].Start)
		if !invalid {
			continue
		}
		if i+1 < len(out) && out[i+1].Key == out[i].Key {
			end := out[i+1].Start.Add(-step)
			out[i].End = &end
		} else {
			out[i].End = nil // last version of the key: currently valid
		}
	}

	for i := range out {
		out[i].Surrogate = int64(i + 1)
	}
	return out, nil
}

// Resolver answers point-in-time lookups against corrected versions.
type Resolver struct {
	byKey map[string][]Version
}

// NewResolver indexes corrected versions by business key. Versions for one
// key must already be in ascending start order (CorrectIntervals output).
func NewResolver(versions []Version) *Resolver {
	byKey := make(map[string][]Version)
	for _, v := range versions {
		byKey[v.Key] = append(byKey[v.Key], v)
	}
	return &Resolver{byKey: byKey}
}

// Resolve returns the version of key whose interval contains t
// (start <= t and (end is null or t <= end)).
//
// No covering interval returns ok=false and no error: the caller maps the
// fact to UnknownSurrogate (or fails, per its policy). More than one
// covering interval is impossible after correction and returns
// *IntegrityError rather than silently picking one.
func (r *Resolver) Resolve(key string, t time.Time) (Version, bool, error) {
	partition := r.byKey[key]

	var (
		match Version
		n     int
	)
	// Partitions hold a handful of versions per entity; a linear scan both
	// resolves and detects double cover in one pass.
	for _, v := range partition {
		if t.Before(v.Start) {
			continue
		}
		if v.End != nil && t.After(*v.End) {
			continue
		}
		match = v
		n++
	}
	switch n {
	case 0:
		return Version{}, false, nil
	case 1:
		return match, true, nil
	default:
		return Version{}, false, &IntegrityError{
			Key:    key,
			Reason: fmt.Sprintf("event time %s is covered by %d overlapping versions", t.Format("2006-01-02"), n),
		}
	}
}
