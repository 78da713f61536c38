// Package storage defines the backend-agnostic contract for the retail
// warehouse and a kind registry that backend packages hook into from init().
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config is the minimal configuration needed to open a Store.
//
// When to use:
//   - Use Config when constructing a Store via New.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind string
	DSN  string
}

// Store is a backend-agnostic interface for the retail warehouse.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the pipeline needs. Each backend implements these semantics in
// its own idiomatic way (Postgres ON CONFLICT, MySQL ON DUPLICATE KEY, etc).
type Store interface {
	// Close releases any backend resources (connections, pools, etc).
	//
	// When to use:
	//   - Always call Close when you are done with the store to avoid leaks.
	//
	// Edge cases:
	//   - Implementations should be safe to call once at process shutdown.
	//   - Repeated calls may be a no-op or may panic, depending on backend;
	//     callers should treat Close as "call once".
	Close()

	// EnsureSchema creates the customers, products and transactions tables and
	// their indexes if they do not already exist. Idempotent.
	EnsureSchema(ctx context.Context) error

	// MaxInvoiceDate returns the newest transaction timestamp already loaded.
	// ok is false when the transactions table is empty; err is reserved for
	// real backend failures, an empty table is not an error.
	MaxInvoiceDate(ctx context.Context) (ts time.Time, ok bool, err error)

	// LoadBatch persists one batch atomically: customers and products are
	// upserted, transactions are appended. Either everything in the batch
	// commits or nothing does.
	LoadBatch(ctx context.Context, customers []CustomerRow, products []ProductRow, txs []TransactionRow) (LoadResult, error)
}

// LoadResult reports per-table row counts for one committed batch.
type LoadResult struct {
	Customers    int64
	Products     int64
	Transactions int64
}

/* ---- factories (backend packages register from init) ---- */

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by New.
//
// Edge cases:
//   - kind must be non-empty.
//   - f must be non-nil.
//   - Registering the same kind more than once panics. This is intentional to
//     fail fast and avoid ambiguous backend selection.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Store using the registered backend factory.
//
// When to use:
//   - Call New when the pipeline needs a store for the configured backend kind.
//
// Edge cases:
//   - If cfg.Kind is empty, New returns an error.
//   - If cfg.Kind is not registered, New returns an error.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, for error messages and -help.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
