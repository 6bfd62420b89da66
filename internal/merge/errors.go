package merge

import "fmt"

// ConsistencyError reports a target uniqueness violation observed during a
// merge. The source select yields one row per key, so an occurrence points at
// an internal defect or an unexpected extra unique constraint on the target,
// and is fatal for the table unit rather than a data-quality condition.
type ConsistencyError struct {
	Table string
	Err   error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("merge %s: uniqueness violation on constrained target (internal consistency): %v", e.Table, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }
