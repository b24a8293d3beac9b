package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/DukeRupert/qrapi/internal/auth"
	"github.com/DukeRupert/qrapi/internal/domain"
)

// RegisterResponse is the body of POST /api/register. The credential is shown
// exactly once.
type RegisterResponse struct {
	Credential string          `json:"credential"`
	Plan       domain.PlanTier `json:"plan"`
	Limit      int             `json:"limit"`
	Message    string          `json:"message"`
}

// UsageResponse is the body of GET /api/usage.
type UsageResponse struct {
	Plan      domain.PlanTier `json:"plan"`
	Usage     int             `json:"usage"`
	Limit     int             `json:"limit"`
	Remaining int             `json:"remaining"`
	ResetAt   time.Time       `json:"reset_at"`
}

// =============================================================================
// POST /api/register
// =============================================================================

// Register creates a free-tier account and returns its credential.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	reg, err := h.accounts.Register(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, RegisterResponse{
		Credential: reg.Credential,
		Plan:       reg.Account.Plan,
		Limit:      reg.Limit,
		Message:    fmt.Sprintf("Welcome! You have %d free QR codes per month. Store your credential now; it cannot be shown again.", reg.Limit),
	})
}

// =============================================================================
// GET /api/usage
// =============================================================================

// Usage reports the caller's usage in the current billing period.
func (h *APIHandler) Usage(w http.ResponseWriter, r *http.Request) {
	acct := auth.GetAccount(r.Context())
	if acct == nil {
		h.logger.Error("usage handler called without authenticated account")
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	report, err := h.quota.Report(r.Context(), acct, time.Now())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Plan:      report.Plan,
		Usage:     report.Usage,
		Limit:     report.Limit,
		Remaining: report.Remaining,
		ResetAt:   report.ResetAt,
	})
}
