// Package service contains the business logic layer.
//
// Services orchestrate interactions between the store, the QR codec, object
// storage, and domain logic. They are responsible for:
// - Input validation
// - Quota enforcement
// - Transaction coordination
// - Error translation (store errors -> domain errors)
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/qrapi/internal/cache"
	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/DukeRupert/qrapi/internal/metrics"
	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/DukeRupert/qrapi/internal/store"
	"github.com/google/uuid"
)

// MaxRegistrationAttempts bounds credential regeneration on collision.
const MaxRegistrationAttempts = 3

// =============================================================================
// Interface Definition
// =============================================================================

// AccountService defines the account registry operations.
type AccountService interface {
	// Register creates a free-tier account and returns its raw credential.
	// The credential is not recoverable afterwards.
	Register(ctx context.Context) (*domain.Registration, error)

	// Lookup resolves a raw credential to its account.
	// Returns domain.EUNAUTHORIZED if the credential is malformed or unknown.
	Lookup(ctx context.Context, credential string) (*domain.Account, error)
}

// =============================================================================
// Implementation
// =============================================================================

type accountService struct {
	store  store.Store
	cache  *cache.AccountCache
	logger *slog.Logger
	now    func() time.Time

	newCredential func() (string, error)
}

// NewAccountService creates a new AccountService. cache may be nil.
func NewAccountService(st store.Store, c *cache.AccountCache, logger *slog.Logger) AccountService {
	return &accountService{
		store:         st,
		cache:         c,
		logger:        logger,
		now:           time.Now,
		newCredential: generateCredential,
	}
}

// Register issues a new credential and stores its hash. The insert is
// conditional on both the id and the hash being unused; on collision a fresh
// credential is drawn.
func (s *accountService) Register(ctx context.Context) (*domain.Registration, error) {
	const op = "account.register"

	limit, err := domain.LimitFor(domain.DefaultPlanTier)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= MaxRegistrationAttempts; attempt++ {
		credential, err := s.newCredential()
		if err != nil {
			return nil, domain.Internal(err, op, "failed to generate credential")
		}

		row, err := s.store.CreateAccount(ctx, repository.CreateAccountParams{
			ID:             uuid.New(),
			CredentialHash: hashCredential(credential),
			Plan:           string(domain.DefaultPlanTier),
			CreatedAt:      s.now().UTC(),
		})
		if store.IsNoRows(err) {
			s.logger.Warn("credential collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, domain.Internal(err, op, "failed to create account")
		}

		acct := repoAccountToDomain(row)
		metrics.AccountsRegistered.Inc()
		s.logger.Info("account registered", "account_id", acct.ID, "plan", acct.Plan)

		return &domain.Registration{
			Account:    acct,
			Credential: credential,
			Limit:      limit,
		}, nil
	}

	return nil, domain.Errorf(domain.EINTERNAL, op, "registration failed after %d attempts", MaxRegistrationAttempts)
}

// Lookup resolves a credential. Hits are served from the cache when one is
// configured; the plan used for admission is always re-read under lock.
func (s *accountService) Lookup(ctx context.Context, credential string) (*domain.Account, error) {
	const op = "account.lookup"

	if !wellFormedCredential(credential) {
		return nil, domain.Unauthorized(op, "Invalid API key")
	}

	hash := hashCredential(credential)
	if acct, ok := s.cache.Get(hash); ok {
		return acct, nil
	}

	row, err := s.store.GetAccountByCredentialHash(ctx, hash)
	if store.IsNoRows(err) {
		return nil, domain.Unauthorized(op, "Invalid API key")
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to look up account")
	}

	acct := repoAccountToDomain(row)
	s.cache.Set(acct)
	return acct, nil
}

// repoAccountToDomain converts a repository.Account to domain.Account. The
// plan is carried through unvalidated; an unknown tier surfaces as a
// configuration error when a limit is needed.
func repoAccountToDomain(a repository.Account) *domain.Account {
	return &domain.Account{
		ID:             a.ID,
		CredentialHash: a.CredentialHash,
		Plan:           domain.PlanTier(a.Plan),
		CreatedAt:      a.CreatedAt,
	}
}
