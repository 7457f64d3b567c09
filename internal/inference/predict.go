package inference

import (
	"fmt"
	"io"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
)

// Predict scores a single document.
func Predict(scorer classifier.Scorer, text string) (classifier.Prediction, error) {
	p, err := classifier.Predict(scorer, text)
	if err != nil {
		return p, fmt.Errorf("scoring document: %w", err)
	}
	return p, nil
}

// WriteReport prints a document with its prediction.
func WriteReport(w io.Writer, text string, p classifier.Prediction) {
	fmt.Fprintf(w, "Review text: %s\nPredicted sentiment: %s\tScore: %v\n", text, p.Label.Display(), p.Confidence)
}
