package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// sensitiveParams are query parameters whose values never reach the log.
var sensitiveParams = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"key":          true,
	"token":        true,
	"access_token": true,
	"credential":   true,
	"secret":       true,
}

// RequestLoggingMiddleware logs one line per request.
type RequestLoggingMiddleware struct {
	logger     *slog.Logger
	trustProxy bool
}

// NewRequestLoggingMiddleware creates a new request logging middleware.
// trustProxy selects whether the logged IP comes from forwarding headers.
func NewRequestLoggingMiddleware(logger *slog.Logger, trustProxy bool) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{logger: logger, trustProxy: trustProxy}
}

// Handler returns middleware that logs method, path, status and latency.
// Health checks and metrics scrapes are not logged.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		attrs := []any{
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientIP(r, m.trustProxy),
			"user_agent", r.UserAgent(),
		}

		if rw.status >= 500 {
			m.logger.Warn("request", attrs...)
		} else {
			m.logger.Info("request", attrs...)
		}
	})
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// sanitizePath returns path plus the query with sensitive values redacted.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return path
	}
	for name := range q {
		if sensitiveParams[strings.ToLower(name)] {
			q[name] = []string{"REDACTED"}
		}
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
