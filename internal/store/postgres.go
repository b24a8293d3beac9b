package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/qrapi/internal/repository"
)

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// PostgresStore implements Store on top of database/sql.
//
// Transactions run at READ COMMITTED. Admission relies on the account row
// lock taken by GetAccountForUpdate to serialize writers per account.
type PostgresStore struct {
	*repository.Queries
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore wraps an open database handle. The caller keeps ownership
// of db until Close is called on the store.
func NewPostgresStore(db *sql.DB, cfg PostgresConfig, logger *slog.Logger) *PostgresStore {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &PostgresStore{
		Queries: repository.New(db),
		db:      db,
		logger:  logger,
	}
}

// InTx runs fn in a read-committed transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q repository.Querier) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("rolling back transaction due to panic", "panic", p)
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			s.logger.Error("transaction rollback failed", "error", rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
