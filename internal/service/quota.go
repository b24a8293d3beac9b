package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/qrapi/internal/cache"
	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/DukeRupert/qrapi/internal/metrics"
	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/DukeRupert/qrapi/internal/store"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// MaxIDAttempts bounds artifact id regeneration on collision.
const MaxIDAttempts = 5

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService enforces monthly plan quotas.
//
// Billing periods are UTC calendar months. Every method takes the current
// time explicitly so that a request is judged against a single instant.
type QuotaService interface {
	// CurrentPeriodCount returns the number of artifacts the account created
	// in the billing period containing now.
	CurrentPeriodCount(ctx context.Context, accountID uuid.UUID, now time.Time) (int, error)

	// Admit atomically checks the account's quota and, if there is room,
	// records exactly one artifact. Returns *domain.QuotaExceededError when
	// the period's usage has reached the plan limit.
	Admit(ctx context.Context, acct *domain.Account, now time.Time, params domain.GenerateParams) (*domain.Admission, error)

	// Report returns current usage. Exhaustion is only reported after the
	// plan has been confirmed against the store.
	Report(ctx context.Context, acct *domain.Account, now time.Time) (*domain.UsageReport, error)
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	store    store.Store
	accounts *cache.AccountCache // evicted when a plan change is observed
	logger   *slog.Logger
	newID    IDFunc
}

// NewQuotaService creates a new QuotaService. newID defaults to ShortID.
// accounts may be nil.
func NewQuotaService(st store.Store, newID IDFunc, accounts *cache.AccountCache, logger *slog.Logger) QuotaService {
	if newID == nil {
		newID = ShortID
	}
	return &quotaService{
		store:    st,
		accounts: accounts,
		logger:   logger,
		newID:    newID,
	}
}

// CurrentPeriodCount counts the account's artifacts in the current period.
func (s *quotaService) CurrentPeriodCount(ctx context.Context, accountID uuid.UUID, now time.Time) (int, error) {
	const op = "quota.current_period_count"

	n, err := countInPeriod(ctx, s.store, accountID, domain.PeriodFor(now))
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count usage")
	}
	return n, nil
}

// Admit runs count-and-insert under the account's row lock. Concurrent
// admissions for the same account queue on the lock, so the count each one
// sees includes every artifact committed before it. Admissions for different
// accounts do not contend.
func (s *quotaService) Admit(ctx context.Context, acct *domain.Account, now time.Time, params domain.GenerateParams) (*domain.Admission, error) {
	const op = "quota.admit"

	options, err := json.Marshal(params.Options)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode render options")
	}

	start := time.Now()
	plan := acct.Plan
	var admission *domain.Admission

	err = s.store.InTx(ctx, func(q repository.Querier) error {
		row, err := q.GetAccountForUpdate(ctx, acct.ID)
		if store.IsNoRows(err) {
			return domain.Unauthorized(op, "Invalid API key")
		}
		if err != nil {
			return domain.Internal(err, op, "failed to lock account")
		}

		plan = domain.PlanTier(row.Plan)
		limit, err := domain.LimitFor(plan)
		if err != nil {
			return err
		}

		usage, err := countInPeriod(ctx, q, acct.ID, domain.PeriodFor(now))
		if err != nil {
			return domain.Internal(err, op, "failed to count usage")
		}
		if usage >= limit {
			return domain.QuotaExceeded(op, usage, limit)
		}

		row2, err := s.insertArtifact(ctx, q, repository.CreateArtifactParams{
			AccountID: acct.ID,
			Payload:   params.Payload,
			Options:   pqtype.NullRawMessage{RawMessage: options, Valid: true},
			CreatedAt: now.UTC(),
		})
		if err != nil {
			return err
		}

		artifact, err := repoArtifactToDomain(row2)
		if err != nil {
			return domain.Internal(err, op, "failed to decode artifact")
		}

		admission = &domain.Admission{
			Artifact:  artifact,
			Usage:     usage + 1,
			Limit:     limit,
			Remaining: limit - usage - 1,
		}
		return nil
	})
	s.observePlan(acct, plan)
	if err != nil {
		if qe, ok := domain.IsQuotaExceeded(err); ok {
			metrics.Rejected(string(plan))
			s.logger.Info("quota exceeded",
				"account_id", acct.ID,
				"plan", plan,
				"usage", qe.Usage,
				"limit", qe.Limit,
			)
			return nil, err
		}
		return nil, asDomainError(err, op, "admission failed")
	}

	metrics.Admitted(string(plan), time.Since(start))
	s.logger.Info("artifact created",
		"account_id", acct.ID,
		"artifact_id", admission.Artifact.ID,
		"usage", admission.Usage,
		"limit", admission.Limit,
	)
	return admission, nil
}

// insertArtifact inserts with a fresh id, regenerating on collision.
func (s *quotaService) insertArtifact(ctx context.Context, q repository.Querier, arg repository.CreateArtifactParams) (repository.Artifact, error) {
	const op = "quota.insert_artifact"

	for attempt := 1; attempt <= MaxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			return repository.Artifact{}, domain.Internal(err, op, "failed to generate artifact id")
		}
		arg.ID = id

		row, err := q.CreateArtifact(ctx, arg)
		if store.IsNoRows(err) {
			s.logger.Warn("artifact id collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return repository.Artifact{}, domain.Internal(err, op, "failed to create artifact")
		}
		return row, nil
	}

	return repository.Artifact{}, domain.Errorf(domain.EINTERNAL, op, "no free artifact id after %d attempts", MaxIDAttempts)
}

// Report returns usage for the period containing now. It takes no locks and
// may be stale by the time the caller acts on it.
//
// acct may come from the credential cache. Before reporting the account as
// exhausted its plan is re-read, so an upgrade is honoured immediately.
func (s *quotaService) Report(ctx context.Context, acct *domain.Account, now time.Time) (*domain.UsageReport, error) {
	const op = "quota.report"

	plan := acct.Plan
	limit, err := domain.LimitFor(plan)
	if err != nil {
		return nil, err
	}

	period := domain.PeriodFor(now)
	usage, err := countInPeriod(ctx, s.store, acct.ID, period)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count usage")
	}

	if usage >= limit {
		row, err := s.store.GetAccountByCredentialHash(ctx, acct.CredentialHash)
		if store.IsNoRows(err) {
			return nil, domain.Unauthorized(op, "Invalid API key")
		}
		if err != nil {
			return nil, domain.Internal(err, op, "failed to load account")
		}
		plan = domain.PlanTier(row.Plan)
		s.observePlan(acct, plan)
		if limit, err = domain.LimitFor(plan); err != nil {
			return nil, err
		}
	}

	return &domain.UsageReport{
		Plan:      plan,
		Usage:     usage,
		Limit:     limit,
		Remaining: max(0, limit-usage),
		ResetAt:   period.End,
	}, nil
}

// observePlan evicts the account's cached credential when the stored plan
// differs from the one it was authenticated with.
func (s *quotaService) observePlan(acct *domain.Account, plan domain.PlanTier) {
	if plan == acct.Plan {
		return
	}
	s.accounts.Delete(acct.CredentialHash)
	s.logger.Info("account plan changed, evicted cached credential",
		"account_id", acct.ID,
		"cached_plan", acct.Plan,
		"plan", plan,
	)
}

func countInPeriod(ctx context.Context, q repository.Querier, accountID uuid.UUID, p domain.BillingPeriod) (int, error) {
	n, err := q.CountArtifactsInPeriod(ctx, repository.CountArtifactsInPeriodParams{
		AccountID:   accountID,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
	})
	return int(n), err
}

// asDomainError passes domain errors through and wraps anything else
// (transaction begin/commit failures, context cancellation) as internal.
func asDomainError(err error, op, message string) error {
	var de *domain.Error
	var ve *domain.ValidationError
	if errors.As(err, &de) || errors.As(err, &ve) {
		return err
	}
	return domain.Internal(err, op, message)
}

// repoArtifactToDomain converts a repository.Artifact to domain.Artifact.
func repoArtifactToDomain(a repository.Artifact) (*domain.Artifact, error) {
	var opts domain.RenderOptions
	if a.Options.Valid && len(a.Options.RawMessage) > 0 {
		if err := json.Unmarshal(a.Options.RawMessage, &opts); err != nil {
			return nil, err
		}
	}

	return &domain.Artifact{
		ID:        a.ID,
		AccountID: a.AccountID,
		Payload:   a.Payload,
		Scans:     a.Scans,
		Options:   opts,
		ImageKey:  domain.NullStringValue(a.ImageKey),
		CreatedAt: a.CreatedAt,
	}, nil
}
