package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/qrapi/internal"
	"github.com/DukeRupert/qrapi/internal/handler"
	"github.com/DukeRupert/qrapi/internal/storage"
	"github.com/DukeRupert/qrapi/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *internal.Config {
	return &internal.Config{
		Env:                "development",
		BaseURL:            "http://qr.test",
		StoreDriver:        "memory",
		StorageProvider:    "local",
		RateLimitPerMinute: 6000,
		RateLimitBurst:     1000,
		CORSAllowedOrigin:  "*",
		MetricsUsername:    "prom",
		MetricsPassword:    "secret",
	}
}

func newTestServer(t *testing.T, cfg *internal.Config) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Start first so stored image URLs can point back at the server.
	var root http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		root.ServeHTTP(w, r)
	}))

	var images storage.Storage
	if cfg.StorageProvider == "local" {
		local, err := storage.NewLocalStorage(storage.LocalConfig{
			BasePath: t.TempDir(),
			BaseURL:  srv.URL + "/images",
		}, logger)
		require.NoError(t, err)
		images = local
	}

	a := &app{cfg: cfg, logger: logger, store: memory.New(), images: images}
	root = a.routes()
	t.Cleanup(func() {
		srv.Close()
		a.close()
	})
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, credential, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if credential != "" {
		req.Header.Set("X-API-Key", credential)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func register(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := call(t, srv, http.MethodPost, "/api/register", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[handler.RegisterResponse](t, resp).Credential
}

func TestServer_GenerateStoresImage(t *testing.T) {
	srv := newTestServer(t, testConfig())
	cred := register(t, srv)

	resp := call(t, srv, http.MethodPost, "/api/generate", cred, `{"data":"https://example.com"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gen := decode[handler.GenerateResponse](t, resp)
	require.NotEmpty(t, gen.ImageURL)
	assert.True(t, strings.HasPrefix(gen.ImageURL, srv.URL+"/images/artifacts/"))

	img := call(t, srv, http.MethodGet, strings.TrimPrefix(gen.ImageURL, srv.URL), "", "")
	require.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/png", img.Header.Get("Content-Type"))

	view := call(t, srv, http.MethodGet, "/qr/"+gen.ID, "", "")
	assert.Equal(t, http.StatusFound, view.StatusCode)
	assert.Equal(t, "https://example.com", view.Header.Get("Location"))
}

func TestServer_QuotaLifecycle(t *testing.T) {
	srv := newTestServer(t, testConfig())
	cred := register(t, srv)

	for i := 0; i < 100; i++ {
		resp := call(t, srv, http.MethodPost, "/api/generate", cred, `{"data":"n","size":64}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	resp := call(t, srv, http.MethodPost, "/api/generate", cred, `{"data":"n","size":64}`)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	body := decode[handler.JSONError](t, resp)
	require.NotNil(t, body.Usage)
	assert.Equal(t, 100, *body.Usage)
	assert.Equal(t, 100, *body.Limit)
}

func TestServer_ConcurrentGenerateNeverExceedsQuota(t *testing.T) {
	srv := newTestServer(t, testConfig())
	cred := register(t, srv)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 130; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/generate", strings.NewReader(`{"data":"c","size":64}`))
			req.Header.Set("X-API-Key", cred)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, admitted)

	usage := decode[handler.UsageResponse](t, call(t, srv, http.MethodGet, "/api/usage", cred, ""))
	assert.Equal(t, 100, usage.Usage)
}

func TestServer_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.RateLimitBurst = 2
	srv := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/register", "", "").StatusCode)
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/register", "", "").StatusCode)

	resp := call(t, srv, http.MethodPost, "/api/register", "", "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "ERATELIMIT", decode[handler.JSONError](t, resp).Error.Code)
}

func TestServer_RegisterThrottleIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.RateLimitBurst = 1
	srv := newTestServer(t, cfg)

	send := func(forwarded string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/register", nil)
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", forwarded)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"))
}

func TestServer_Metrics(t *testing.T) {
	srv := newTestServer(t, testConfig())
	call(t, srv, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusUnauthorized, call(t, srv, http.MethodGet, "/metrics", "", "").StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	require.NoError(t, err)
	req.SetBasicAuth("prom", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "qrapi_http_requests_total")
}

func TestServer_AmbientHeaders(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp := call(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/generate", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	pre, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer pre.Body.Close()

	assert.Equal(t, http.StatusNoContent, pre.StatusCode)
	assert.Equal(t, "*", pre.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_WithoutImageStorage(t *testing.T) {
	cfg := testConfig()
	cfg.StorageProvider = "none"
	srv := newTestServer(t, cfg)
	cred := register(t, srv)

	resp := call(t, srv, http.MethodPost, "/api/generate", cred, `{"data":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[handler.GenerateResponse](t, resp).ImageURL)

	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/images/x.png", "", "").StatusCode)
}

func TestServer_AnalyticsAfterScans(t *testing.T) {
	srv := newTestServer(t, testConfig())
	cred := register(t, srv)
	id := decode[handler.GenerateResponse](t, call(t, srv, http.MethodPost, "/api/generate", cred, `{"data":"plain text"}`)).ID

	for i := 0; i < 2; i++ {
		resp := call(t, srv, http.MethodGet, "/qr/"+id, "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	a := decode[handler.AnalyticsResponse](t, call(t, srv, http.MethodGet, "/analytics/"+id, "", ""))
	assert.Equal(t, int64(2), a.TotalScans)
	assert.WithinDuration(t, time.Now(), a.CreatedAt, time.Minute)
}
