package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)), false)

	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("User-Agent", "curl/8.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "method=POST")
	assert.Contains(t, out, "path=/api/generate")
	assert.Contains(t, out, "status=429")
	assert.Contains(t, out, "duration_ms=")
	assert.Contains(t, out, "ip=192.0.2.1")
	assert.Contains(t, out, "curl/8.0")
}

func TestRequestLoggingMiddleware_ServerErrorsWarn(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)), false)

	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	assert.Contains(t, buf.String(), "level=WARN")
}

func TestRequestLoggingMiddleware_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)), false)

	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/usage?api_key=qr_secret&page=2", nil))

	out := buf.String()
	assert.NotContains(t, out, "qr_secret")
	assert.Contains(t, out, "api_key=REDACTED")
	assert.Contains(t, out, "page=2")
}

func TestRequestLoggingMiddleware_SkipsHealthAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)), false)
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/health", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Empty(t, buf.String())
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		query string
		want  string
	}{
		{"no query", "/qr/abc", "", "/qr/abc"},
		{"harmless", "/qr/abc", "utm=x", "/qr/abc?utm=x"},
		{"token", "/x", "token=abc", "/x?token=REDACTED"},
		{"mixed case", "/x", "API_KEY=abc", "/x?API_KEY=REDACTED"},
		{"unparseable", "/x", "%zz", "/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizePath(tt.path, tt.query))
		})
	}
}
