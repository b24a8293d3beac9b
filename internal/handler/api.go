// Package handler contains HTTP handlers for the QR API.
//
// Every response is JSON except the scan redirect and stored images.
// Errors go through ErrorResponse so that status codes and bodies stay
// consistent across routes.
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/qrapi/internal/service"
)

// ServiceName and APIVersion are reported by the home endpoint.
const (
	ServiceName = "QR Code API"
	APIVersion  = "1.0"
)

// =============================================================================
// Handler Configuration
// =============================================================================

// APIHandler serves the account, generation and scan routes.
type APIHandler struct {
	accounts  service.AccountService
	quota     service.QuotaService
	artifacts service.ArtifactService
	baseURL   string
	logger    *slog.Logger
}

// NewAPIHandler creates a new APIHandler. baseURL prefixes the view and
// analytics links returned by Generate.
func NewAPIHandler(
	accounts service.AccountService,
	quota service.QuotaService,
	artifacts service.ArtifactService,
	baseURL string,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		accounts:  accounts,
		quota:     quota,
		artifacts: artifacts,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the API routes with the provided mux.
//
// requireAccount guards the credentialed routes. throttle wraps the
// unauthenticated write route.
//
// Routes:
// - GET  /                -> Home
// - POST /api/register    -> Register
// - POST /api/generate    -> Generate (credential)
// - GET  /api/usage       -> Usage (credential)
// - GET  /qr/{id}         -> View
// - GET  /analytics/{id}  -> Analytics
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux, requireAccount, throttle func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.Handle("POST /api/register", throttle(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/generate", requireAccount(http.HandlerFunc(h.Generate)))
	mux.Handle("GET /api/usage", requireAccount(http.HandlerFunc(h.Usage)))
	mux.HandleFunc("GET /qr/{id}", h.View)
	mux.HandleFunc("GET /analytics/{id}", h.Analytics)
}

func (h *APIHandler) viewURL(id string) string {
	return h.baseURL + "/qr/" + id
}

func (h *APIHandler) analyticsURL(id string) string {
	return h.baseURL + "/analytics/" + id
}
