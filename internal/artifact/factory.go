package artifact

import (
	"fmt"

	"github.com/epotapov/SentimentAnalysis/internal/config"
)

// New creates the store selected by cfg.Backend.
func New(cfg config.ArtifactConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileStore(cfg.Dir), nil
	case "s3":
		return NewS3Store(Connect(cfg.S3), cfg.S3.Bucket, cfg.S3.Prefix)
	case "mirror":
		remote, err := NewS3Store(Connect(cfg.S3), cfg.S3.Bucket, cfg.S3.Prefix)
		if err != nil {
			return nil, err
		}
		return NewMirrorStore(NewFileStore(cfg.Dir), remote), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend: %s", cfg.Backend)
	}
}
