package bow

import (
	"fmt"
	"io"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
)

// Factory builds bag-of-words models with fixed options.
type Factory struct {
	Options Options
}

var _ classifier.Factory = Factory{}

// NewFactory creates a factory from the model section of the configuration.
func NewFactory(cfg config.ModelConfig) Factory {
	return Factory{Options: Options{
		Buckets:      cfg.Buckets,
		LearnRate:    cfg.LearnRate,
		L2:           cfg.L2,
		Bigrams:      cfg.Bigrams,
		Seed:         cfg.DropoutSeed,
		MaxTokenSize: cfg.MaxTokenSize,
	}}
}

// Name returns the strategy name.
func (f Factory) Name() string {
	return Name
}

// New creates an untrained binary model. labels must be exactly positive
// and negative.
func (f Factory) New(labels []corpus.Label) (classifier.Classifier, error) {
	if len(labels) != 2 {
		return nil, fmt.Errorf("bow model is binary, got %d labels", len(labels))
	}
	seen := map[corpus.Label]bool{}
	for _, l := range labels {
		if !l.Valid() || seen[l] {
			return nil, fmt.Errorf("labels must be %s and %s, got %v", corpus.Positive, corpus.Negative, labels)
		}
		seen[l] = true
	}
	return New(f.Options)
}

// Load restores a saved model.
func (f Factory) Load(r io.Reader) (classifier.Classifier, error) {
	return Load(r)
}
