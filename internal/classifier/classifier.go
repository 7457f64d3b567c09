// Package classifier defines the capability interface between the training
// harness and a trainable text classifier. Concrete learning strategies live
// in subpackages and are swappable behind Classifier and Factory.
package classifier

import (
	"fmt"
	"io"

	"github.com/epotapov/SentimentAnalysis/internal/corpus"
)

// Params selects which parameter set a read or save operation uses.
type Params int

const (
	// ParamsLive are the in-flight parameters mutated by Update.
	ParamsLive Params = iota
	// ParamsAveraged are the running average of parameters over all updates.
	ParamsAveraged
)

func (p Params) String() string {
	switch p {
	case ParamsLive:
		return "live"
	case ParamsAveraged:
		return "averaged"
	default:
		return fmt.Sprintf("Params(%d)", int(p))
	}
}

// Scores is a per-label probability distribution for one document.
type Scores map[corpus.Label]float64

// Scorer maps a document to a per-label distribution without side effects.
type Scorer interface {
	Score(text string) (Scores, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(text string) (Scores, error)

// Score calls f.
func (f ScorerFunc) Score(text string) (Scores, error) {
	return f(text)
}

// Classifier is a trainable text classifier.
type Classifier interface {
	Scorer

	// Labels returns the categories in comparison order.
	Labels() []corpus.Label

	// Update consumes one batch, adjusts the live parameters and returns the
	// batch loss. dropout is the share of input features zeroed per example.
	Update(batch []corpus.Example, dropout float64) (float64, error)

	// Averaged returns a read-only view scoring with averaged parameters.
	Averaged() Scorer

	// Save writes the selected parameters as an opaque blob.
	Save(w io.Writer, params Params) error
}

// Factory creates fresh classifiers and restores saved ones.
type Factory interface {
	// Name identifies the strategy in artifact metadata.
	Name() string

	// New creates an untrained classifier over labels.
	New(labels []corpus.Label) (Classifier, error)

	// Load restores a classifier from a blob written by Save.
	Load(r io.Reader) (Classifier, error)
}

// Prediction is the winning label of a document and its probability.
type Prediction struct {
	Label      corpus.Label `json:"label"`
	Confidence float64      `json:"confidence"`
}

// Decide picks the label with the higher score. Positive is compared first
// and wins ties.
func Decide(s Scores) Prediction {
	pos, neg := s[corpus.Positive], s[corpus.Negative]
	if pos >= neg {
		return Prediction{Label: corpus.Positive, Confidence: pos}
	}
	return Prediction{Label: corpus.Negative, Confidence: neg}
}

// Predict scores text and applies Decide.
func Predict(s Scorer, text string) (Prediction, error) {
	scores, err := s.Score(text)
	if err != nil {
		return Prediction{}, err
	}
	return Decide(scores), nil
}
