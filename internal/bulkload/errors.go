package bulkload

import "fmt"

// LoadError is a file-level load failure: the landing clear, the extract
// file, or the bulk write. It fails the table's unit; row-level oddities are
// handled by the tolerant reader instead.
type LoadError struct {
	Table string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("bulk load %s from %s: %v", e.Table, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
