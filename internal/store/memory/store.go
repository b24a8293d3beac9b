// Package memory implements store.Store in process memory.
//
// Transactions are fully serialized: InTx holds a store-wide lock for the
// duration of fn, and writes made inside fn are buffered until commit.
// Data does not survive a restart.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/DukeRupert/qrapi/internal/store"
	"github.com/google/uuid"
)

// ErrForeignKey is returned when an artifact references a missing account.
var ErrForeignKey = errors.New("memory: artifact references unknown account")

// Store is an in-memory store.Store.
type Store struct {
	txMu sync.Mutex

	mu        sync.RWMutex
	accounts  map[uuid.UUID]repository.Account
	byHash    map[string]uuid.UUID
	artifacts map[string]repository.Artifact
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]repository.Account),
		byHash:    make(map[string]uuid.UUID),
		artifacts: make(map[string]repository.Artifact),
	}
}

// =============================================================================
// Auto-commit queries
// =============================================================================

func (s *Store) CreateAccount(_ context.Context, arg repository.CreateAccountParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accountConflict(arg.ID, arg.CredentialHash) {
		return repository.Account{}, sql.ErrNoRows
	}
	a := accountFromParams(arg)
	s.putAccount(a)
	return a, nil
}

func (s *Store) GetAccountByCredentialHash(_ context.Context, credentialHash string) (repository.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[credentialHash]
	if !ok {
		return repository.Account{}, sql.ErrNoRows
	}
	return s.accounts[id], nil
}

func (s *Store) GetAccountForUpdate(_ context.Context, id uuid.UUID) (repository.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return repository.Account{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) CountArtifactsInPeriod(_ context.Context, arg repository.CountArtifactsInPeriodParams) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countInPeriod(arg), nil
}

func (s *Store) CreateArtifact(_ context.Context, arg repository.CreateArtifactParams) (repository.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[arg.ID]; exists {
		return repository.Artifact{}, sql.ErrNoRows
	}
	if _, ok := s.accounts[arg.AccountID]; !ok {
		return repository.Artifact{}, ErrForeignKey
	}
	a := artifactFromParams(arg)
	s.artifacts[a.ID] = a
	return a, nil
}

func (s *Store) GetArtifact(_ context.Context, id string) (repository.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return repository.Artifact{}, sql.ErrNoRows
	}
	return a, nil
}

func (s *Store) IncrementArtifactScans(_ context.Context, id string) (repository.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return repository.Artifact{}, sql.ErrNoRows
	}
	a.Scans++
	s.artifacts[id] = a
	return a, nil
}

func (s *Store) SetArtifactImageKey(_ context.Context, arg repository.SetArtifactImageKeyParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.artifacts[arg.ID]; ok {
		a.ImageKey = arg.ImageKey
		s.artifacts[arg.ID] = a
	}
	return nil
}

// =============================================================================
// Transactions
// =============================================================================

// InTx runs fn with exclusive access to the store. Buffered writes are
// applied only if fn succeeds and ctx is still live.
func (s *Store) InTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{
		s:         s,
		scans:     make(map[string]int64),
		imageKeys: make(map[string]sql.NullString),
	}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.commit()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// =============================================================================
// Internal helpers (callers hold s.mu)
// =============================================================================

func (s *Store) accountConflict(id uuid.UUID, hash string) bool {
	if _, exists := s.accounts[id]; exists {
		return true
	}
	_, exists := s.byHash[hash]
	return exists
}

func (s *Store) putAccount(a repository.Account) {
	s.accounts[a.ID] = a
	s.byHash[a.CredentialHash] = a.ID
}

func (s *Store) countInPeriod(arg repository.CountArtifactsInPeriodParams) int64 {
	var n int64
	for _, a := range s.artifacts {
		if matchesPeriod(a, arg) {
			n++
		}
	}
	return n
}

func matchesPeriod(a repository.Artifact, arg repository.CountArtifactsInPeriodParams) bool {
	return a.AccountID == arg.AccountID &&
		!a.CreatedAt.Before(arg.PeriodStart) &&
		a.CreatedAt.Before(arg.PeriodEnd)
}

func accountFromParams(arg repository.CreateAccountParams) repository.Account {
	return repository.Account{
		ID:             arg.ID,
		CredentialHash: arg.CredentialHash,
		Plan:           arg.Plan,
		CreatedAt:      arg.CreatedAt,
	}
}

func artifactFromParams(arg repository.CreateArtifactParams) repository.Artifact {
	return repository.Artifact{
		ID:        arg.ID,
		AccountID: arg.AccountID,
		Payload:   arg.Payload,
		Options:   arg.Options,
		CreatedAt: arg.CreatedAt,
	}
}

var _ store.Store = (*Store)(nil)
