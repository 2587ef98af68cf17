// Package media provides object storage for message attachments. Uploaded
// objects are addressed by key and exposed through a public URL that the
// gateway passes to Meta as the image link.
package media

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("media: object not found")

// Store defines the interface for media storage backends.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns the externally reachable URL for an uploaded object.
	URL(key string) string
}

// Config holds configuration for creating a media Store.
type Config struct {
	Type       string // "local" or "s3"
	Path       string // base directory for local store
	S3Bucket   string
	S3Prefix   string
	S3Endpoint string
	S3Region   string
	// PublicURL is the base URL under which stored objects are served.
	PublicURL string
}

// New creates a media Store based on the provided configuration.
// If Type is empty or unsupported, it defaults to local storage and logs a warning.
func New(cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalStore(cfg.Path, cfg.PublicURL)
	case "s3":
		return NewS3StoreFromConfig(cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty media store type, defaulting to local")
		return NewLocalStore(cfg.Path, cfg.PublicURL)
	}
}

// joinURL concatenates a base URL and key with exactly one slash.
func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}
