package training

import (
	"context"

	"github.com/epotapov/SentimentAnalysis/internal/artifact"
	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
)

// CorpusLoader produces the train and test sets on demand.
type CorpusLoader func() (train, test corpus.Dataset, err error)

// Model is a stored classifier ready for inference.
type Model struct {
	Classifier classifier.Classifier
	Meta       *artifact.Meta
	Trained    bool    // false when the artifact already existed
	Report     *Report // nil unless Trained
}

// EnsureModel loads the configured artifact, training and storing it first
// when it is absent. The corpus is only loaded when training is needed.
//
// The presence check is a plain existence guard: two processes racing on a
// missing artifact both train, and the last save wins.
func (t *Trainer) EnsureModel(ctx context.Context, load CorpusLoader) (*Model, error) {
	exists, err := t.store.Exists(ctx, t.cfg.Artifact)
	if err != nil {
		return nil, err
	}

	model := &Model{Trained: !exists}
	if exists {
		t.log.Info("Artifact present, skipping training", "artifact", t.store.Location(t.cfg.Artifact))
	} else {
		train, test, err := load()
		if err != nil {
			return nil, err
		}
		report, err := t.Train(ctx, train, test)
		if err != nil {
			return nil, err
		}
		model.Report = report
	}

	// Always serve the stored averaged parameters, never the live ones.
	model.Classifier, model.Meta, err = artifact.LoadModel(ctx, t.store, t.cfg.Artifact, t.factory)
	if err != nil {
		return nil, err
	}
	return model, nil
}
