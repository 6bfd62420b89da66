package storage

import (
	"context"
	"fmt"
	"sync"

	"dwetl/internal/config"
)

// DDLBootstrapper is a backend-specific function that renders the schema plan
// for the warehouse configuration and applies the resulting DDL via
// repo.Exec (typically CREATE TABLE IF NOT EXISTS).
//
// Backends register their implementation for a storage kind at init time.
type DDLBootstrapper func(ctx context.Context, repo Repository, w config.Warehouse) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) a DDLBootstrapper for the given storage
// kind. It is typically called from backend packages' init() functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureSchema locates the DDLBootstrapper for w.Storage.Kind and invokes it.
// Callers do not need to know which backend they are using; they pass the
// warehouse configuration and the already-open Repository.
func EnsureSchema(ctx context.Context, w config.Warehouse, repo Repository) error {
	ddlMu.RLock()
	fn, ok := ddlFns[w.Storage.Kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", w.Storage.Kind)
	}
	return fn(ctx, repo, w)
}
