package memory

import (
	"context"
	"database/sql"

	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/google/uuid"
)

// tx is a repository.Querier whose writes are buffered until commit.
// Reads see committed data overlaid with the buffered writes.
type tx struct {
	s *Store

	accounts  []repository.Account
	artifacts []repository.Artifact
	scans     map[string]int64
	imageKeys map[string]sql.NullString
}

func (t *tx) CreateAccount(_ context.Context, arg repository.CreateAccountParams) (repository.Account, error) {
	t.s.mu.RLock()
	conflict := t.s.accountConflict(arg.ID, arg.CredentialHash)
	t.s.mu.RUnlock()

	if conflict {
		return repository.Account{}, sql.ErrNoRows
	}
	for _, a := range t.accounts {
		if a.ID == arg.ID || a.CredentialHash == arg.CredentialHash {
			return repository.Account{}, sql.ErrNoRows
		}
	}

	a := accountFromParams(arg)
	t.accounts = append(t.accounts, a)
	return a, nil
}

func (t *tx) GetAccountByCredentialHash(ctx context.Context, credentialHash string) (repository.Account, error) {
	for _, a := range t.accounts {
		if a.CredentialHash == credentialHash {
			return a, nil
		}
	}
	return t.s.GetAccountByCredentialHash(ctx, credentialHash)
}

func (t *tx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	for _, a := range t.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return t.s.GetAccountForUpdate(ctx, id)
}

func (t *tx) CountArtifactsInPeriod(ctx context.Context, arg repository.CountArtifactsInPeriodParams) (int64, error) {
	n, err := t.s.CountArtifactsInPeriod(ctx, arg)
	if err != nil {
		return 0, err
	}
	for _, a := range t.artifacts {
		if matchesPeriod(a, arg) {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateArtifact(ctx context.Context, arg repository.CreateArtifactParams) (repository.Artifact, error) {
	if _, err := t.GetArtifact(ctx, arg.ID); err == nil {
		return repository.Artifact{}, sql.ErrNoRows
	}
	if _, err := t.GetAccountForUpdate(ctx, arg.AccountID); err != nil {
		return repository.Artifact{}, ErrForeignKey
	}

	a := artifactFromParams(arg)
	t.artifacts = append(t.artifacts, a)
	return a, nil
}

func (t *tx) GetArtifact(ctx context.Context, id string) (repository.Artifact, error) {
	a, err := t.lookupArtifact(ctx, id)
	if err != nil {
		return repository.Artifact{}, err
	}
	a.Scans += t.scans[id]
	if key, ok := t.imageKeys[id]; ok {
		a.ImageKey = key
	}
	return a, nil
}

func (t *tx) IncrementArtifactScans(ctx context.Context, id string) (repository.Artifact, error) {
	if _, err := t.lookupArtifact(ctx, id); err != nil {
		return repository.Artifact{}, err
	}
	t.scans[id]++
	return t.GetArtifact(ctx, id)
}

func (t *tx) SetArtifactImageKey(ctx context.Context, arg repository.SetArtifactImageKeyParams) error {
	if _, err := t.lookupArtifact(ctx, arg.ID); err != nil {
		return nil
	}
	t.imageKeys[arg.ID] = arg.ImageKey
	return nil
}

func (t *tx) lookupArtifact(ctx context.Context, id string) (repository.Artifact, error) {
	for _, a := range t.artifacts {
		if a.ID == id {
			return a, nil
		}
	}
	return t.s.GetArtifact(ctx, id)
}

// commit applies buffered writes. The caller holds s.txMu.
func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, a := range t.accounts {
		t.s.putAccount(a)
	}
	for _, a := range t.artifacts {
		t.s.artifacts[a.ID] = a
	}
	for id, n := range t.scans {
		a := t.s.artifacts[id]
		a.Scans += n
		t.s.artifacts[id] = a
	}
	for id, key := range t.imageKeys {
		a := t.s.artifacts[id]
		a.ImageKey = key
		t.s.artifacts[id] = a
	}
}

var _ repository.Querier = (*tx)(nil)
