// Package storage contains the storage-agnostic contracts shared by the
// warehouse backends.
//
// A Repository is one open warehouse database holding every layer (landing,
// raw, typed, gold) plus the run ledger. Backends register a factory at init
// time (see Register) so callers select them purely by configuration; cmd
// wiring blank-imports dwetl/internal/storage/all to link the built-in
// backends in.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dwetl/internal/ledger"
	"dwetl/internal/merge"
)

// Config selects and configures a backend.
type Config struct {
	Kind string // registered backend name: "postgres", "mysql", "mssql", "sqlite"
	DSN  string // backend connection string
}

// Repository is an open warehouse database.
//
// Ledger writes (the embedded ledger.Store) run outside any unit scope, so a
// run record survives the rollback of the table unit it brackets.
type Repository interface {
	ledger.Store

	// BeginUnit opens the transactional scope for one table's load unit.
	// Everything inside commits together or leaves no trace.
	BeginUnit(ctx context.Context) (Unit, error)

	// Exec runs a single statement outside any unit (DDL bootstrap).
	Exec(ctx context.Context, sql string) error

	// Close releases the underlying pool or connection.
	Close()
}

// Unit is one table's transactional unit of work: clear, load, and merge (or
// a typed/gold rebuild) made durable by Commit or discarded by Rollback.
// Rollback after Commit is a no-op so callers can defer it.
type Unit interface {
	// Truncate clears a container. Implemented as DELETE so it stays inside
	// the unit's transaction on every backend; a no-op with no prior state.
	Truncate(ctx context.Context, table string) error

	// CopyIn bulk-inserts rows (aligned with columns) into a container using
	// the backend's most efficient primitive.
	CopyIn(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Merge reconciles the landing container into the constrained target per
	// the merge contract. A uniqueness violation surfaces as
	// *merge.ConsistencyError.
	Merge(ctx context.Context, spec merge.Spec) (merge.Stats, error)

	// ReadRows returns every row of a container, values aligned with columns.
	ReadRows(ctx context.Context, table string, columns []string) ([][]any, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory constructs a Repository for one storage kind.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	factMu    sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. It is typically
// called from backend packages' init functions.
func Register(kind string, fn Factory) {
	factMu.Lock()
	defer factMu.Unlock()
	factories[kind] = fn
}

// New opens a Repository for cfg.Kind via the registered factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	factMu.RLock()
	fn, ok := factories[cfg.Kind]
	factMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for kind=%q (have %v)", cfg.Kind, registeredKinds())
	}
	return fn(ctx, cfg)
}

func registeredKinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
