package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DukeRupert/qrapi/internal/codec"
	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/DukeRupert/qrapi/internal/metrics"
	"github.com/DukeRupert/qrapi/internal/repository"
	"github.com/DukeRupert/qrapi/internal/storage"
	"github.com/DukeRupert/qrapi/internal/store"
)

// ImageCacheControl is sent with stored images. Artifact images never change.
const ImageCacheControl = "public, max-age=31536000, immutable"

// =============================================================================
// Interface Definition
// =============================================================================

// ArtifactService generates artifacts and serves the scan surface.
type ArtifactService interface {
	// Generate validates the request, renders the image and admits it against
	// the account's quota. Returns *domain.QuotaExceededError when the account
	// is at its limit, in which case nothing is recorded.
	Generate(ctx context.Context, acct *domain.Account, params domain.GenerateParams) (*domain.GenerateResult, error)

	// RecordScan increments the artifact's scan counter and returns the
	// updated artifact. Returns domain.ENOTFOUND for unknown ids.
	RecordScan(ctx context.Context, id string) (*domain.Artifact, error)

	// GetAnalytics returns scan statistics. Returns domain.ENOTFOUND for
	// unknown ids.
	GetAnalytics(ctx context.Context, id string) (*domain.Analytics, error)
}

// =============================================================================
// Implementation
// =============================================================================

type artifactService struct {
	store    store.Store
	quota    QuotaService
	renderer codec.Renderer
	images   storage.Storage // nil disables image persistence
	logger   *slog.Logger
	now      func() time.Time
}

// NewArtifactService creates a new ArtifactService. images may be nil.
func NewArtifactService(
	st store.Store,
	quota QuotaService,
	renderer codec.Renderer,
	images storage.Storage,
	logger *slog.Logger,
) ArtifactService {
	return &artifactService{
		store:    st,
		quota:    quota,
		renderer: renderer,
		images:   images,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate runs in four steps:
//  1. Cheap pre-check against the usage report, so over-quota requests
//     don't pay for rendering. The report confirms the plan with the store
//     before declaring exhaustion, so a stale cached plan cannot reject.
//  2. Render outside any transaction.
//  3. Admit: the authoritative count-and-insert under the account lock.
//  4. Best-effort upload of the image after commit.
func (s *artifactService) Generate(ctx context.Context, acct *domain.Account, params domain.GenerateParams) (*domain.GenerateResult, error) {
	const op = "artifact.generate"

	params, err := normalizeGenerateParams(op, acct.Plan, params)
	if err != nil {
		return nil, err
	}

	now := s.now()

	report, err := s.quota.Report(ctx, acct, now)
	if err != nil {
		return nil, err
	}
	if report.Remaining == 0 {
		metrics.Rejected(string(report.Plan))
		return nil, domain.QuotaExceeded(op, report.Usage, report.Limit)
	}

	renderStart := time.Now()
	image, err := s.renderer.Render(params.Payload, params.Options)
	if errors.Is(err, codec.ErrLogoTooLarge) {
		return nil, domain.NewValidationError(op, "logo", fmt.Sprintf("Logo must be at most %dx%d pixels", codec.MaxLogoSide, codec.MaxLogoSide))
	}
	if err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, "Could not render QR code for this payload")
	}
	metrics.Rendered(time.Since(renderStart))

	admission, err := s.quota.Admit(ctx, acct, now, params)
	if err != nil {
		return nil, err
	}

	result := &domain.GenerateResult{
		Artifact:  admission.Artifact,
		Image:     image,
		Remaining: admission.Remaining,
	}
	result.ImageURL = s.storeImage(ctx, admission.Artifact, image)

	return result, nil
}

// storeImage uploads the rendered PNG and records its key. Failures are
// logged and yield an empty URL; the artifact stays admitted.
func (s *artifactService) storeImage(ctx context.Context, a *domain.Artifact, image []byte) string {
	if s.images == nil {
		return ""
	}

	key := storage.ArtifactImageKey(a.AccountID, a.ID)
	err := s.images.Put(ctx, key, bytes.NewReader(image), storage.PutOptions{
		ContentType:  storage.ContentTypePNG,
		CacheControl: ImageCacheControl,
		Public:       true,
	})
	if err != nil {
		metrics.Uploaded(false)
		s.logger.Warn("failed to store artifact image", "artifact_id", a.ID, "error", err)
		return ""
	}
	metrics.Uploaded(true)

	err = s.store.SetArtifactImageKey(ctx, repository.SetArtifactImageKeyParams{
		ID:       a.ID,
		ImageKey: domain.ToNullString(key),
	})
	if err != nil {
		s.logger.Warn("failed to record artifact image key", "artifact_id", a.ID, "error", err)
		if derr := s.images.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Warn("failed to remove orphaned image", "key", key, "error", derr)
		}
		return ""
	}
	a.ImageKey = key

	url, err := s.images.URL(ctx, key, 0)
	if err != nil {
		s.logger.Warn("failed to build image url", "artifact_id", a.ID, "error", err)
		return ""
	}
	return url
}

// RecordScan increments the counter in a single statement, so concurrent
// scans of one artifact never lose an update.
func (s *artifactService) RecordScan(ctx context.Context, id string) (*domain.Artifact, error) {
	const op = "artifact.record_scan"

	row, err := s.store.IncrementArtifactScans(ctx, id)
	if store.IsNoRows(err) {
		return nil, domain.NotFound(op, "QR code", id)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record scan")
	}
	metrics.ScansRecorded.Inc()

	a, err := repoArtifactToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode artifact")
	}
	return a, nil
}

// GetAnalytics returns scan statistics as of now.
func (s *artifactService) GetAnalytics(ctx context.Context, id string) (*domain.Analytics, error) {
	const op = "artifact.get_analytics"

	row, err := s.store.GetArtifact(ctx, id)
	if store.IsNoRows(err) {
		return nil, domain.NotFound(op, "QR code", id)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load artifact")
	}

	a, err := repoArtifactToDomain(row)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to decode artifact")
	}
	return domain.ComputeAnalytics(a, s.now()), nil
}

// =============================================================================
// Validation
// =============================================================================

// normalizeGenerateParams applies defaults and validates the request.
// Premium options the plan does not include are dropped, not rejected.
func normalizeGenerateParams(op string, plan domain.PlanTier, p domain.GenerateParams) (domain.GenerateParams, error) {
	var verr error

	if strings.TrimSpace(p.Payload) == "" {
		verr = domain.NewValidationError(op, "data", "Data is required")
	} else if len(p.Payload) > domain.MaxPayloadBytes {
		verr = domain.NewValidationError(op, "data", fmt.Sprintf("Data must be at most %d bytes", domain.MaxPayloadBytes))
	} else if !utf8.ValidString(p.Payload) {
		verr = domain.NewValidationError(op, "data", "Data must be valid UTF-8")
	}

	o := &p.Options
	if o.Size == 0 {
		o.Size = domain.DefaultQRSize
	}
	if o.Size < domain.MinQRSize || o.Size > domain.MaxQRSize {
		verr = addFieldError(verr, op, "size", fmt.Sprintf("Size must be between %d and %d", domain.MinQRSize, domain.MaxQRSize))
	}

	o.Format = strings.ToLower(o.Format)
	if o.Format == "" {
		o.Format = domain.DefaultFormat
	}
	if o.Format != domain.DefaultFormat {
		verr = addFieldError(verr, op, "format", "Only png is supported")
	}

	if plan.AllowsCustomColors() {
		if o.Color != "" {
			if _, err := codec.ParseHexColor(o.Color); err != nil {
				verr = addFieldError(verr, op, "color", "Color must be in #RRGGBB form")
			}
		}
		if o.BgColor != "" {
			if _, err := codec.ParseHexColor(o.BgColor); err != nil {
				verr = addFieldError(verr, op, "bg_color", "Background color must be in #RRGGBB form")
			}
		}
	} else {
		o.Color, o.BgColor = "", ""
	}

	if !plan.AllowsLogo() {
		o.Logo = nil
	}
	o.HasLogo = len(o.Logo) > 0

	if verr != nil {
		return p, verr
	}
	return p, nil
}

func addFieldError(err error, op, field, message string) error {
	if err == nil {
		return domain.NewValidationError(op, field, message)
	}
	return domain.AddFieldError(err, field, message)
}
