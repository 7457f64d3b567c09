// Package artifact persists trained classifiers under a name. A stored
// artifact is a model blob plus a YAML metadata document.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/hash"
)

const (
	// ModelFile is the blob name inside an artifact.
	ModelFile = "model.json.gz"
	// MetaFile is the metadata document name inside an artifact.
	MetaFile = "meta.yaml"
)

// Meta describes a stored artifact.
type Meta struct {
	Name        string         `yaml:"name"`
	Strategy    string         `yaml:"strategy"`
	Params      string         `yaml:"params"`
	Labels      []corpus.Label `yaml:"labels"`
	RunID       string         `yaml:"run_id,omitempty"`
	Epochs      int            `yaml:"epochs,omitempty"`
	FScore      float64        `yaml:"f_score,omitempty"`
	TrainDigest string         `yaml:"train_digest,omitempty"`
	Checksum    string         `yaml:"checksum"`
	Size        int64          `yaml:"size"`
	CreatedAt   time.Time      `yaml:"created_at"`
}

// Store is the interface for artifact persistence. Implementations return an
// ArtifactNotFound error from Load when name is absent.
type Store interface {
	// Exists reports whether a complete artifact is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Save stores blob and meta under name, replacing any previous artifact.
	Save(ctx context.Context, name string, blob []byte, meta Meta) error

	// Load returns the blob and metadata stored under name.
	Load(ctx context.Context, name string) ([]byte, *Meta, error)

	// Location describes where name lives, for logs and reports.
	Location(name string) string
}

// SaveModel serializes c with the selected parameters and stores it.
// Checksum, size, labels, strategy and params are filled in from the blob.
func SaveModel(ctx context.Context, store Store, name, strategy string, c classifier.Classifier, params classifier.Params, meta Meta) (*Meta, error) {
	var buf bytes.Buffer
	if err := c.Save(&buf, params); err != nil {
		return nil, errors.InternalError("serializing classifier", err)
	}

	meta.Name = name
	meta.Strategy = strategy
	meta.Params = params.String()
	meta.Labels = c.Labels()
	meta.Checksum = hash.SHA256(buf.Bytes())
	meta.Size = int64(buf.Len())
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	if err := store.Save(ctx, name, buf.Bytes(), meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadModel loads name and restores it with factory. The blob checksum is
// verified against the metadata before decoding.
func LoadModel(ctx context.Context, store Store, name string, factory classifier.Factory) (classifier.Classifier, *Meta, error) {
	blob, meta, err := store.Load(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	if meta.Strategy != "" && meta.Strategy != factory.Name() {
		return nil, nil, errors.ValidationError(
			fmt.Sprintf("artifact %s was trained by %s, not %s", name, meta.Strategy, factory.Name()))
	}
	if meta.Checksum != "" {
		if sum := hash.SHA256(blob); sum != meta.Checksum {
			return nil, nil, errors.ValidationError(fmt.Sprintf("artifact %s is corrupt: checksum mismatch", name)).
				WithDetail("expected", meta.Checksum).
				WithDetail("actual", sum)
		}
	}

	c, err := factory.Load(bytes.NewReader(blob))
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeValidation, fmt.Sprintf("decoding artifact %s", name), err)
	}
	return c, meta, nil
}
