// Package storage persists rendered QR images in object storage.
//
// Two providers implement Storage:
//   - LocalStorage: files under a directory, served by the API itself
//   - R2Storage: Cloudflare R2 through the S3-compatible API
//
// Image storage is best effort. A failed upload never undoes an admitted
// artifact; the artifact simply has no image URL.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Provider names accepted by the STORAGE_PROVIDER setting.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
	ProviderNone  = "none"
)

// ContentTypePNG is the MIME type of every rendered image.
const ContentTypePNG = "image/png"

// Storage stores and serves objects by key.
type Storage interface {
	// Put writes data at key. Returns ErrKeyExists if the key is taken and
	// opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get opens the object at key. The caller closes the reader.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for the object. A zero expires asks for a permanent
	// public URL where the provider has one.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Overwrite    bool
	Public       bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./storage".
	BasePath string

	// BaseURL is the public prefix the API serves files under,
	// e.g. "http://localhost:8080/images".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's public domain. If empty, presigned URLs are
	// issued instead.
	PublicURL string

	// Region defaults to "auto".
	Region string
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	Local    LocalConfig
	R2       R2Config
}

// New creates the configured provider. ProviderNone returns a nil Storage,
// which disables image persistence.
func New(cfg Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Provider {
	case ProviderLocal:
		s, err := NewLocalStorage(cfg.Local, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderR2:
		s, err := NewR2Storage(cfg.R2, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// ArtifactImageKey returns the key for an artifact's rendered image.
// Format: artifacts/{accountID}/{artifactID}.png
func ArtifactImageKey(accountID uuid.UUID, artifactID string) string {
	return fmt.Sprintf("artifacts/%s/%s.png", accountID, artifactID)
}
