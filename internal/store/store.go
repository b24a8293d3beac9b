// Package store provides the persistence handle shared by all services.
//
// A Store exposes the sqlc-generated queries directly for single-statement
// operations and InTx for multi-statement units of work. Two backends exist:
//   - Postgres: the production store (database/sql over the pgx driver)
//   - memory: a mutex-guarded in-process store for tests and local runs
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/DukeRupert/qrapi/internal/repository"
)

// Store is the persistence contract required by the service layer.
type Store interface {
	repository.Querier

	// InTx runs fn inside a single transaction. The Querier passed to fn is
	// bound to that transaction. If fn returns an error, or ctx is canceled
	// before commit, every write made through it is rolled back.
	InTx(ctx context.Context, fn func(q repository.Querier) error) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}

// Driver names accepted by the STORE_DRIVER setting.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// IsNoRows reports whether err means a query matched nothing. Conditional
// inserts (ON CONFLICT DO NOTHING ... RETURNING) report a conflict this way.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
