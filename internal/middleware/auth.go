// Package middleware contains HTTP middleware for the QR API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler
// and are composed with Stack.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/qrapi/internal/auth"
	"github.com/DukeRupert/qrapi/internal/handler"
	"github.com/DukeRupert/qrapi/internal/service"
)

// AuthMiddleware resolves API credentials to accounts.
type AuthMiddleware struct {
	accounts service.AccountService
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(accounts service.AccountService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{accounts: accounts, logger: logger}
}

// RequireAccount rejects requests without a valid credential with 401 and
// stores the resolved account in the context otherwise. Retrieve it with
// auth.GetAccount.
func (m *AuthMiddleware) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := auth.CredentialFromRequest(r)
		if credential == "" {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		acct, err := m.accounts.Lookup(r.Context(), credential)
		if err != nil {
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetAccount(r.Context(), acct)))
	})
}

// Stack composes middleware so that the first argument is outermost.
//
//	Stack(a, b, c)(h) == a(b(c(h)))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
