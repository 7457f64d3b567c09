package evaluation

import (
	"context"
	"fmt"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
)

// Evaluate scores every test document with scorer and compares the positive
// probability against Threshold. Only Scorer is required, so evaluation
// cannot update parameters.
func Evaluate(ctx context.Context, scorer classifier.Scorer, test corpus.Dataset) (*Result, error) {
	c := NewConfusion()
	for i, ex := range test {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores, err := scorer.Score(ex.Text)
		if err != nil {
			return nil, fmt.Errorf("scoring test document %d: %w", i, err)
		}
		c.Add(scores[corpus.Positive] >= Threshold, ex.Label == corpus.Positive)
	}

	result := c.Result()
	result.Count = len(test)
	return result, nil
}

// Summarize aggregates per-epoch results. Ties for the best F-score go to
// the earlier epoch.
func Summarize(results []*Result) *Summary {
	if len(results) == 0 {
		return &Summary{}
	}

	summary := &Summary{Epochs: len(results)}
	for i, r := range results {
		summary.MeanPrecision += r.Precision
		summary.MeanRecall += r.Recall
		summary.MeanFScore += r.FScore
		if summary.BestEpoch == 0 || r.FScore > summary.BestFScore {
			summary.BestEpoch = i + 1
			summary.BestFScore = r.FScore
		}
	}

	n := float64(len(results))
	summary.MeanPrecision /= n
	summary.MeanRecall /= n
	summary.MeanFScore /= n
	summary.FinalFScore = results[len(results)-1].FScore

	return summary
}
