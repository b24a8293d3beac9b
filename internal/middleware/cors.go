package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/DukeRupert/qrapi/internal/auth"
)

// CORSMiddleware lets browser clients call the API from another origin.
type CORSMiddleware struct {
	allowedOrigin string
	maxAge        int
}

// NewCORSMiddleware allows requests from allowedOrigin, or from any origin
// when it is "*". An empty origin disables CORS headers.
func NewCORSMiddleware(allowedOrigin string) *CORSMiddleware {
	return &CORSMiddleware{allowedOrigin: allowedOrigin, maxAge: 600}
}

// Handler sets CORS headers and answers preflight requests with 204.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", "Authorization", auth.APIKeyHeader}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if m.allowedOrigin == "" || origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		switch {
		case m.allowedOrigin == "*":
			h.Set("Access-Control-Allow-Origin", "*")
		case strings.EqualFold(origin, m.allowedOrigin):
			h.Set("Access-Control-Allow-Origin", origin)
		default:
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", strconv.Itoa(m.maxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h.Set("Access-Control-Expose-Headers", "Retry-After")
		next.ServeHTTP(w, r)
	})
}
