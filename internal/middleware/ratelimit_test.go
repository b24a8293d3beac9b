package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/DukeRupert/qrapi/internal/auth"
	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozenLimiter returns a limiter whose clock only moves when told to.
func frozenLimiter(t *testing.T, perMinute, burst int) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(perMinute, burst)
	t.Cleanup(rl.Close)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_Burst(t *testing.T) {
	rl, _ := frozenLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("k")
		assert.True(t, ok, "request %d", i+1)
	}

	ok, wait := rl.Allow("k")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, wait, float64(10*time.Millisecond))
}

func TestRateLimiter_Refills(t *testing.T) {
	rl, now := frozenLimiter(t, 60, 1)

	ok, _ := rl.Allow("k")
	require.True(t, ok)
	ok, _ = rl.Allow("k")
	require.False(t, ok)

	*now = now.Add(time.Second)
	ok, _ = rl.Allow("k")
	assert.True(t, ok)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := frozenLimiter(t, 60, 1)

	ok, _ := rl.Allow("a")
	require.True(t, ok)
	ok, _ = rl.Allow("a")
	require.False(t, ok)

	ok, _ = rl.Allow("b")
	assert.True(t, ok)
}

func TestRateLimiter_RejectedRequestsDoNotConsume(t *testing.T) {
	rl, now := frozenLimiter(t, 60, 1)

	rl.Allow("k")
	for i := 0; i < 5; i++ {
		rl.Allow("k")
	}

	*now = now.Add(time.Second)
	ok, _ := rl.Allow("k")
	assert.True(t, ok, "denied calls must not push the next token further out")
}

func TestRateLimiter_EvictsIdle(t *testing.T) {
	rl, now := frozenLimiter(t, 60, 1)

	rl.Allow("old")
	*now = now.Add(rl.idleTTL + time.Second)
	rl.Allow("fresh")

	rl.evictIdle()
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := frozenLimiter(t, 60, 2)
	mw := NewRateLimitMiddleware(rl, ByClientIP(false), testLogger())
	h := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, http.StatusOK, send().Code)

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)
	assert.Contains(t, rec.Body.String(), domain.ERATELIMIT)
}

func TestByAccount(t *testing.T) {
	key := ByAccount(false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "ip:192.0.2.1", key(req))

	id := uuid.New()
	req = req.WithContext(auth.SetAccount(req.Context(), &domain.Account{ID: id}))
	assert.Equal(t, "account:"+id.String(), key(req))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"remote addr", false, nil, "192.0.2.1:1234", "192.0.2.1"},
		{"remote addr without port", false, nil, "192.0.2.1", "192.0.2.1"},
		{"x-forwarded-for ignored", false, map[string]string{"X-Forwarded-For": "203.0.113.5"}, "192.0.2.1:1234", "192.0.2.1"},
		{"x-real-ip ignored", false, map[string]string{"X-Real-IP": "203.0.113.9"}, "192.0.2.1:1234", "192.0.2.1"},
		{"x-forwarded-for first hop", true, map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.2:1", "203.0.113.5"},
		{"x-real-ip", true, map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.2:1", "203.0.113.9"},
		{"trusted without headers", true, nil, "10.0.0.2:1", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestRateLimitMiddleware_SpoofedForwardedFor(t *testing.T) {
	rl, _ := frozenLimiter(t, 60, 1)
	h := NewRateLimitMiddleware(rl, ByClientIP(false), testLogger()).Limit(okHandler)

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	// A fresh forwarded address does not buy a fresh bucket.
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"))
}
