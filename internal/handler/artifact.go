package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/qrapi/internal/auth"
	"github.com/DukeRupert/qrapi/internal/domain"
)

// MaxGenerateBodyBytes caps the request body, logo included.
const MaxGenerateBodyBytes = 1 << 20

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Data    string `json:"data"`
	Size    int    `json:"size"`
	Format  string `json:"format"`
	Color   string `json:"color"`
	BgColor string `json:"bg_color"`
	Logo    string `json:"logo"` // base64 PNG or JPEG
}

// GenerateResponse is the body of a successful generation.
type GenerateResponse struct {
	Artifact     string `json:"artifact"` // base64 PNG
	ID           string `json:"id"`
	ViewURL      string `json:"view_url"`
	AnalyticsURL string `json:"analytics_url"`
	ImageURL     string `json:"image_url,omitempty"`
	Remaining    int    `json:"remaining"`
}

// AnalyticsResponse is the body of GET /analytics/{id}.
type AnalyticsResponse struct {
	ID             string    `json:"id"`
	TotalScans     int64     `json:"total_scans"`
	CreatedAt      time.Time `json:"created_at"`
	AvgScansPerDay float64   `json:"avg_scans_per_day"`
}

// =============================================================================
// POST /api/generate
// =============================================================================

// Generate renders a QR code for the caller and meters it against their plan.
func (h *APIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.generate"

	acct := auth.GetAccount(r.Context())
	if acct == nil {
		h.logger.Error("generate handler called without authenticated account")
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	params, err := decodeGenerateRequest(w, r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.artifacts.Generate(r.Context(), acct, params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	id := result.Artifact.ID
	writeJSON(w, http.StatusOK, GenerateResponse{
		Artifact:     base64.StdEncoding.EncodeToString(result.Image),
		ID:           id,
		ViewURL:      h.viewURL(id),
		AnalyticsURL: h.analyticsURL(id),
		ImageURL:     result.ImageURL,
		Remaining:    result.Remaining,
	})
}

// decodeGenerateRequest parses the JSON body into service parameters.
// Field-level validation is left to the service.
func decodeGenerateRequest(w http.ResponseWriter, r *http.Request, op string) (domain.GenerateParams, error) {
	var req GenerateRequest

	r.Body = http.MaxBytesReader(w, r.Body, MaxGenerateBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.GenerateParams{}, domain.Invalid(op, "Request body is too large")
		}
		return domain.GenerateParams{}, domain.Invalid(op, "Request body must be a JSON object")
	}

	params := domain.GenerateParams{
		Payload: req.Data,
		Options: domain.RenderOptions{
			Size:    req.Size,
			Format:  req.Format,
			Color:   strings.TrimSpace(req.Color),
			BgColor: strings.TrimSpace(req.BgColor),
		},
	}

	if req.Logo != "" {
		logo, err := decodeLogo(req.Logo)
		if err != nil {
			return domain.GenerateParams{}, domain.NewValidationError(op, "logo", "Logo must be base64-encoded image data")
		}
		params.Options.Logo = logo
	}

	return params, nil
}

// decodeLogo accepts raw base64 or a data: URI.
func decodeLogo(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		_, rest, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data uri")
		}
		s = rest
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
}

// =============================================================================
// GET /qr/{id}
// =============================================================================

// View records a scan. URL payloads redirect; anything else is echoed back.
func (h *APIHandler) View(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.artifacts.RecordScan(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if artifact.IsURL() {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, artifact.Payload, http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"data": artifact.Payload})
}

// =============================================================================
// GET /analytics/{id}
// =============================================================================

// Analytics returns scan statistics for an artifact.
func (h *APIHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.artifacts.GetAnalytics(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AnalyticsResponse{
		ID:             a.ID,
		TotalScans:     a.TotalScans,
		CreatedAt:      a.CreatedAt,
		AvgScansPerDay: a.AvgScansPerDay,
	})
}
