package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DukeRupert/qrapi/internal/domain"
	"github.com/DukeRupert/qrapi/internal/storage"
)

// ImageHandler serves stored artifact images when the local storage provider
// is in use. R2 images are served by the bucket's public URL instead.
type ImageHandler struct {
	images storage.Storage
	logger *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(images storage.Storage, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{images: images, logger: logger}
}

// RegisterRoutes registers GET /images/{key...}.
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /images/{key...}", h.Serve)
}

// Serve streams the object stored under key.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	const op = "handler.serve_image"

	key := r.PathValue("key")
	body, info, err := h.images.Get(r.Context(), key)
	if storage.IsNotFound(err) || storage.IsInvalidKey(err) {
		NotFoundResponse(w, r, h.logger)
		return
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to read image"))
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if !info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("failed to stream image", "key", key, "error", err)
	}
}
