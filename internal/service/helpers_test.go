package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/DukeRupert/qrapi/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// march15 is a fixed instant well inside a billing period.
var march15 = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// seedAccount inserts an account on the given plan directly into the store.
func seedAccount(t *testing.T, st *memory.Store, plan domain.PlanTier) *domain.Account {
	t.Helper()
	row, err := st.CreateAccount(context.Background(), repository.CreateAccountParams{
		ID:             uuid.New(),
		CredentialHash: uuid.NewString(),
		Plan:           string(plan),
		CreatedAt:      march15,
	})
	require.NoError(t, err)
	return repoAccountToDomain(row)
}

// planStore reports a fixed plan for every credential lookup, standing in
// for a plan change made outside this process.
type planStore struct {
	*memory.Store
	plan domain.PlanTier
}

func (p *planStore) GetAccountByCredentialHash(ctx context.Context, hash string) (repository.Account, error) {
	row, err := p.Store.GetAccountByCredentialHash(ctx, hash)
	row.Plan = string(p.plan)
	return row, err
}

// sequenceIDs returns an IDFunc yielding ids in order, then "id-<n>".
func sequenceIDs(ids ...string) IDFunc {
	n := 0
	return func() (string, error) {
		n++
		if n <= len(ids) {
			return ids[n-1], nil
		}
		return "id-" + uuid.NewString()[:8], nil
	}
}

// fakeRenderer records calls and returns fixed bytes.
type fakeRenderer struct {
	calls int
	last  domain.RenderOptions
	err   error
}

func (f *fakeRenderer) Render(payload string, opts domain.RenderOptions) ([]byte, error) {
	f.calls++
	f.last = opts
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\x89PNG fake " + payload), nil
}
