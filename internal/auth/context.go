// Package auth carries the authenticated account through request contexts.
//
// It is imported by both middleware and handler packages, which keeps the
// two free of an import cycle.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/DukeRupert/qrapi/internal/domain"
)

// APIKeyHeader is the preferred credential header.
const APIKeyHeader = "X-API-Key"

type contextKey string

const accountContextKey contextKey = "account"

// GetAccount returns the authenticated account, or nil.
func GetAccount(ctx context.Context) *domain.Account {
	acct, ok := ctx.Value(accountContextKey).(*domain.Account)
	if !ok {
		return nil
	}
	return acct
}

// SetAccount stores the authenticated account in ctx.
func SetAccount(ctx context.Context, acct *domain.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, acct)
}

// CredentialFromRequest extracts the raw credential from X-API-Key or, failing
// that, an "Authorization: Bearer" header. Returns "" if neither is set.
func CredentialFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}
