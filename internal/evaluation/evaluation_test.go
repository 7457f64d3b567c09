package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
)

func dataset(t *testing.T, labels ...corpus.Label) corpus.Dataset {
	t.Helper()
	var d corpus.Dataset
	for _, l := range labels {
		ex, err := corpus.NewExample(string(l)+" review", l)
		require.NoError(t, err)
		d = append(d, ex)
	}
	return d
}

// constant scores every document with the same positive probability.
func constant(p float64) classifier.Scorer {
	return classifier.ScorerFunc(func(string) (classifier.Scores, error) {
		return classifier.Scores{corpus.Positive: p, corpus.Negative: 1 - p}, nil
	})
}

// oracle predicts the label embedded in the document text.
var oracle = classifier.ScorerFunc(func(text string) (classifier.Scores, error) {
	if text == "positive review" {
		return classifier.Scores{corpus.Positive: 0.9, corpus.Negative: 0.1}, nil
	}
	return classifier.Scores{corpus.Positive: 0.2, corpus.Negative: 0.8}, nil
})

func TestEvaluate_PerfectPredictions(t *testing.T) {
	test := dataset(t, corpus.Positive, corpus.Negative, corpus.Positive, corpus.Negative)

	r, err := Evaluate(context.Background(), oracle, test)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.TP)
	assert.Equal(t, 2.0, r.TN)
	assert.InDelta(t, 1.0, r.Precision, 1e-6)
	assert.InDelta(t, 1.0, r.Recall, 1e-6)
	assert.InDelta(t, 1.0, r.FScore, 1e-6)
	assert.Equal(t, 4, r.Count)
}

func TestEvaluate_AllPositivePredictedNegative(t *testing.T) {
	test := dataset(t, corpus.Positive, corpus.Positive, corpus.Positive)

	r, err := Evaluate(context.Background(), constant(0.1), test)
	require.NoError(t, err)
	assert.Zero(t, r.TP)
	assert.InDelta(t, 3, r.FN, 1e-6)
	assert.InDelta(t, 0, r.Recall, 1e-9)
	assert.InDelta(t, 0, r.Precision, 1e-9)
	assert.Zero(t, r.FScore)
}

func TestEvaluate_ThresholdInclusive(t *testing.T) {
	test := dataset(t, corpus.Positive, corpus.Negative)

	r, err := Evaluate(context.Background(), constant(0.5), test)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.TP)
	assert.Equal(t, 1+Epsilon, r.FP)
	assert.Zero(t, r.TN)
}

func TestEvaluate_Empty(t *testing.T) {
	r, err := Evaluate(context.Background(), constant(0.7), nil)
	require.NoError(t, err)
	assert.Zero(t, r.Precision)
	assert.Zero(t, r.Recall)
	assert.Zero(t, r.FScore)
	assert.Equal(t, Epsilon, r.FP)
	assert.Equal(t, Epsilon, r.FN)
}

func TestEvaluate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, oracle, dataset(t, corpus.Positive))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFScore(t *testing.T) {
	tests := []struct {
		name string
		p, r float64
		want float64
	}{
		{"both zero", 0, 0, 0},
		{"equal", 0.5, 0.5, 0.5},
		{"perfect", 1, 1, 1},
		{"skewed", 1, 0.5, 2.0 / 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, FScore(tt.p, tt.r), 1e-12)
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, &Summary{}, Summarize(nil))

	s := Summarize([]*Result{
		{Precision: 0.6, Recall: 0.4, FScore: 0.48},
		{Precision: 0.8, Recall: 0.8, FScore: 0.8},
		{Precision: 0.7, Recall: 0.9, FScore: 0.8},
	})
	assert.Equal(t, 3, s.Epochs)
	assert.Equal(t, 2, s.BestEpoch)
	assert.InDelta(t, 0.8, s.BestFScore, 1e-12)
	assert.InDelta(t, 0.8, s.FinalFScore, 1e-12)
	assert.InDelta(t, 0.7, s.MeanPrecision, 1e-12)
	assert.InDelta(t, 0.7, s.MeanRecall, 1e-12)
}
