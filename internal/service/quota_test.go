package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/qrapi/internal/cache"
	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/DukeRupert/qrapi/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(payload string) domain.GenerateParams {
	return domain.GenerateParams{
		Payload: payload,
		Options: domain.RenderOptions{Size: domain.DefaultQRSize, Format: domain.DefaultFormat},
	}
}

// fill admits n artifacts for acct at the given time.
func fill(t *testing.T, svc QuotaService, acct *domain.Account, at time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.Admit(context.Background(), acct, at, params("https://example.com"))
		require.NoError(t, err)
	}
}

func TestAdmit_RecordsOneArtifact(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	adm, err := svc.Admit(context.Background(), acct, march15, params("hello"))
	require.NoError(t, err)

	assert.Equal(t, 1, adm.Usage)
	assert.Equal(t, 100, adm.Limit)
	assert.Equal(t, 99, adm.Remaining)
	assert.Equal(t, "hello", adm.Artifact.Payload)
	assert.Equal(t, acct.ID, adm.Artifact.AccountID)
	assert.Equal(t, int64(0), adm.Artifact.Scans)
	assert.Equal(t, domain.DefaultQRSize, adm.Artifact.Options.Size)
	assert.True(t, march15.Equal(adm.Artifact.CreatedAt))

	n, err := svc.CurrentPeriodCount(context.Background(), acct.ID, march15)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdmit_Boundary(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	fill(t, svc, acct, march15, domain.FreeMonthlyLimit-1)

	// limit-1 used: one more is admitted.
	adm, err := svc.Admit(context.Background(), acct, march15, params("last"))
	require.NoError(t, err)
	assert.Equal(t, domain.FreeMonthlyLimit, adm.Usage)
	assert.Equal(t, 0, adm.Remaining)

	// limit used: rejected with the counts.
	_, err = svc.Admit(context.Background(), acct, march15, params("over"))
	qe, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok, "expected quota error, got %v", err)
	assert.Equal(t, 100, qe.Usage)
	assert.Equal(t, 100, qe.Limit)

	n, err := svc.CurrentPeriodCount(context.Background(), acct.ID, march15)
	require.NoError(t, err)
	assert.Equal(t, domain.FreeMonthlyLimit, n, "rejection records nothing")
}

func TestAdmit_ConcurrentNeverExceedsLimit(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	fill(t, svc, acct, march15, 95)

	const workers = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Admit(context.Background(), acct, march15, params("race"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
				return
			}
			if _, ok := domain.IsQuotaExceeded(err); ok {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
	assert.Equal(t, workers-5, rejected)

	n, err := svc.CurrentPeriodCount(context.Background(), acct.ID, march15)
	require.NoError(t, err)
	assert.Equal(t, domain.FreeMonthlyLimit, n)
}

func TestAdmit_AccountsAreIndependent(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	full := seedAccount(t, st, domain.PlanTierFree)
	other := seedAccount(t, st, domain.PlanTierFree)

	fill(t, svc, full, march15, domain.FreeMonthlyLimit)

	adm, err := svc.Admit(context.Background(), other, march15, params("ok"))
	require.NoError(t, err)
	assert.Equal(t, 1, adm.Usage)
}

func TestAdmit_PeriodRollover(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	lastInstant := time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC)
	fill(t, svc, acct, lastInstant, domain.FreeMonthlyLimit)

	_, err := svc.Admit(context.Background(), acct, lastInstant, params("x"))
	_, ok := domain.IsQuotaExceeded(err)
	require.True(t, ok)

	april := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	adm, err := svc.Admit(context.Background(), acct, april, params("new month"))
	require.NoError(t, err)
	assert.Equal(t, 1, adm.Usage)
	assert.Equal(t, 99, adm.Remaining)

	march, err := svc.CurrentPeriodCount(context.Background(), acct.ID, lastInstant)
	require.NoError(t, err)
	assert.Equal(t, domain.FreeMonthlyLimit, march)
}

func TestAdmit_UsesCurrentPlanFromStore(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierStarter)

	// A stale copy claiming free must not cap a starter account at 100.
	stale := *acct
	stale.Plan = domain.PlanTierFree
	fill(t, svc, &stale, march15, domain.FreeMonthlyLimit)

	adm, err := svc.Admit(context.Background(), &stale, march15, params("x"))
	require.NoError(t, err)
	assert.Equal(t, domain.StarterMonthlyLimit, adm.Limit)
}

func TestAdmit_UnknownTier(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTier("platinum"))

	_, err := svc.Admit(context.Background(), acct, march15, params("x"))
	assert.Equal(t, domain.ECONFIG, domain.ErrorCode(err))

	n, err := svc.CurrentPeriodCount(context.Background(), acct.ID, march15)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdmit_UnknownAccount(t *testing.T) {
	svc := NewQuotaService(memory.New(), nil, nil, testLogger())

	_, err := svc.Admit(context.Background(), &domain.Account{Plan: domain.PlanTierFree}, march15, params("x"))
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestAdmit_CanceledContextRecordsNothing(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Admit(ctx, acct, march15, params("x"))
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	n, err := svc.CurrentPeriodCount(context.Background(), acct.ID, march15)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdmit_RegeneratesCollidingID(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, sequenceIDs("dup", "dup", "dup", "fresh"), nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	first, err := svc.Admit(context.Background(), acct, march15, params("a"))
	require.NoError(t, err)
	assert.Equal(t, "dup", first.Artifact.ID)

	second, err := svc.Admit(context.Background(), acct, march15, params("b"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", second.Artifact.ID)

	got, err := st.GetArtifact(context.Background(), "dup")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Payload, "existing artifact untouched")
}

func TestAdmit_GivesUpOnPersistentCollision(t *testing.T) {
	st := memory.New()
	always := func() (string, error) { return "dup", nil }
	svc := NewQuotaService(st, always, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	_, err := svc.Admit(context.Background(), acct, march15, params("a"))
	require.NoError(t, err)

	_, err = svc.Admit(context.Background(), acct, march15, params("b"))
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	n, err := svc.CurrentPeriodCount(context.Background(), acct.ID, march15)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdmit_IdentifiersAreUnique(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierStarter)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		adm, err := svc.Admit(context.Background(), acct, march15, params("x"))
		require.NoError(t, err)
		require.False(t, seen[adm.Artifact.ID], "duplicate id %s", adm.Artifact.ID)
		seen[adm.Artifact.ID] = true
	}
}

func TestReport(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)

	fill(t, svc, acct, march15, 3)

	r, err := svc.Report(context.Background(), acct, march15)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierFree, r.Plan)
	assert.Equal(t, 3, r.Usage)
	assert.Equal(t, 100, r.Limit)
	assert.Equal(t, 97, r.Remaining)
	assert.True(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC).Equal(r.ResetAt))
}

func TestReport_RemainingNeverNegative(t *testing.T) {
	st := memory.New()
	svc := NewQuotaService(st, nil, nil, testLogger())
	acct := seedAccount(t, st, domain.PlanTierStarter)
	fill(t, svc, acct, march15, 120)

	// Usage above the free limit after a downgrade.
	downgraded := NewQuotaService(&planStore{Store: st, plan: domain.PlanTierFree}, nil, nil, testLogger())
	acct.Plan = domain.PlanTierFree

	r, err := downgraded.Report(context.Background(), acct, march15)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierFree, r.Plan)
	assert.Equal(t, 120, r.Usage)
	assert.Equal(t, 0, r.Remaining)
}

func TestReport_ConfirmsPlanBeforeExhaustion(t *testing.T) {
	st := memory.New()
	credentials := cache.NewAccountCache(time.Minute)
	svc := NewQuotaService(st, nil, credentials, testLogger())
	acct := seedAccount(t, st, domain.PlanTierStarter)
	fill(t, svc, acct, march15, domain.FreeMonthlyLimit)

	// Cached before an upgrade from free to starter.
	stale := *acct
	stale.Plan = domain.PlanTierFree
	credentials.Set(&stale)

	r, err := svc.Report(context.Background(), &stale, march15)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanTierStarter, r.Plan)
	assert.Equal(t, domain.StarterMonthlyLimit, r.Limit)
	assert.Equal(t, domain.StarterMonthlyLimit-domain.FreeMonthlyLimit, r.Remaining)

	_, ok := credentials.Get(acct.CredentialHash)
	assert.False(t, ok, "stale credential evicted")
}

func TestReport_UnchangedPlanKeepsCache(t *testing.T) {
	st := memory.New()
	credentials := cache.NewAccountCache(time.Minute)
	svc := NewQuotaService(st, nil, credentials, testLogger())
	acct := seedAccount(t, st, domain.PlanTierFree)
	fill(t, svc, acct, march15, domain.FreeMonthlyLimit)
	credentials.Set(acct)

	r, err := svc.Report(context.Background(), acct, march15)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Remaining)

	_, ok := credentials.Get(acct.CredentialHash)
	assert.True(t, ok)
}

func TestAdmit_EvictsCachedCredentialOnPlanChange(t *testing.T) {
	st := memory.New()
	credentials := cache.NewAccountCache(time.Minute)
	svc := NewQuotaService(st, nil, credentials, testLogger())
	acct := seedAccount(t, st, domain.PlanTierPro)

	stale := *acct
	stale.Plan = domain.PlanTierStarter
	credentials.Set(&stale)

	adm, err := svc.Admit(context.Background(), &stale, march15, params("x"))
	require.NoError(t, err)
	assert.Equal(t, domain.ProMonthlyLimit, adm.Limit)

	_, ok := credentials.Get(acct.CredentialHash)
	assert.False(t, ok)
}

func TestRepoArtifactToDomain_DecodesOptions(t *testing.T) {
	row := repository.Artifact{ID: "x", Payload: "p"}
	a, err := repoArtifactToDomain(row)
	require.NoError(t, err)
	assert.Equal(t, domain.RenderOptions{}, a.Options)
	assert.Empty(t, a.ImageKey)
}
