package inference

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/table"
)

var keywordScorer = classifier.ScorerFunc(func(text string) (classifier.Scores, error) {
	switch {
	case strings.Contains(text, "boom"):
		return nil, stderrors.New("malformed cell")
	case strings.Contains(text, "good"):
		return classifier.Scores{corpus.Positive: 0.875, corpus.Negative: 0.125}, nil
	case strings.Contains(text, "bad"):
		return classifier.Scores{corpus.Positive: 0.25, corpus.Negative: 0.75}, nil
	default:
		return classifier.Scores{corpus.Positive: 0.5, corpus.Negative: 0.5}, nil
	}
})

var questions = []Question{
	{Column: "Q1", ResultColumn: "Question 1 Result", ScoreColumn: "Question 1 Score"},
	{Column: "Q2", ResultColumn: "Question 2 Result", ScoreColumn: "Question 2 Score"},
}

func surveyTable(t *testing.T, rows ...[]string) *table.Table {
	t.Helper()
	tbl, err := table.New([]string{"Name", "Q1", "Q2"}, rows)
	require.NoError(t, err)
	return tbl
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) RecordPrediction(question, label string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, question+"="+label)
}

func newRunner(t *testing.T) (*Runner, *bytes.Buffer) {
	t.Helper()
	r, err := NewRunner(keywordScorer, nil, nil)
	require.NoError(t, err)
	var out bytes.Buffer
	r.SetOutput(&out)
	return r, &out
}

func TestInfer_AugmentsCopy(t *testing.T) {
	r, out := newRunner(t)
	rec := &recorder{}
	r.SetRecorder(rec)

	tbl := surveyTable(t,
		[]string{"ann", "good idea", "bad topping"},
		[]string{"bob", "no opinion", ""},
	)

	res, err := r.Infer(context.Background(), tbl, questions)
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Q1", "Q2",
		"Question 1 Result", "Question 2 Result", "Question 1 Score", "Question 2 Score"}, res.Table.Header())
	assert.Equal(t, []string{"ann", "good idea", "bad topping", "Positive", "Negative", "0.875", "0.75"}, res.Table.Row(0))

	// ties go to positive
	assert.Equal(t, "Positive", res.Table.Cell(1, "Question 1 Result"))
	assert.Equal(t, "0.5", res.Table.Cell(1, "Question 2 Score"))

	// the input is untouched
	assert.Equal(t, []string{"Name", "Q1", "Q2"}, tbl.Header())

	assert.Equal(t, "Testing 1 out of 2\nTesting 2 out of 2\n", out.String())
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, res.Counts["Q1"][corpus.Positive])
	assert.Equal(t, 1, res.Counts["Q2"][corpus.Negative])
	assert.Len(t, rec.calls, 4)
	assert.Equal(t, "Question 1 Result=positive", rec.calls[0])
}

func TestInfer_SchemaErrorBeforeAnyRow(t *testing.T) {
	r, out := newRunner(t)
	tbl, err := table.New([]string{"Q1"}, [][]string{{"good"}})
	require.NoError(t, err)

	_, err = r.Infer(context.Background(), tbl, questions)
	require.True(t, errors.IsSchema(err))
	assert.Contains(t, err.Error(), `"Q2"`)
	assert.Empty(t, out.String(), "no row was processed")
}

func TestInfer_CellFailureIsFatal(t *testing.T) {
	r, _ := newRunner(t)
	tbl := surveyTable(t,
		[]string{"ann", "good", "good"},
		[]string{"bob", "boom", "good"},
	)

	_, err := r.Infer(context.Background(), tbl, questions)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInference, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "row 2")
}

func TestInfer_NoQuestions(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.Infer(context.Background(), surveyTable(t), nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestInfer_Canceled(t *testing.T) {
	r, _ := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Infer(ctx, surveyTable(t, []string{"a", "good", "bad"}), questions)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInferFile_WritesOutputAndPublishes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	input := filepath.Join(dir, "Opinion Form.csv")
	output := filepath.Join(dir, "testoutput.csv")
	source := "Name,Q1,Q2\nann,good,bad\n"
	require.NoError(t, os.WriteFile(input, []byte(source), 0644))

	b := bus.NewMemoryBus(nil)
	defer b.Close()
	var mu sync.Mutex
	var got []bus.InferenceCompleted
	require.NoError(t, b.Subscribe(ctx, bus.TopicInferenceCompleted, func(_ context.Context, e bus.Event) error {
		p, err := bus.DecodePayload[bus.InferenceCompleted](e)
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		return err
	}))

	r, err := NewRunner(keywordScorer, nil, b)
	require.NoError(t, err)
	r.SetOutput(&bytes.Buffer{})

	_, err = r.InferFile(ctx, input, output, questions)
	require.NoError(t, err)
	require.True(t, b.Drain(5*time.Second))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "Name,Q1,Q2,Question 1 Result,Question 2 Result,Question 1 Score,Question 2 Score\n"+
		"ann,good,bad,Positive,Negative,0.875,0.75\n", string(data))

	src, err := os.ReadFile(input)
	require.NoError(t, err)
	assert.Equal(t, source, string(src))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Rows)
	assert.Equal(t, []string{"Q1", "Q2"}, got[0].Questions)
	assert.Equal(t, output, got[0].Output)
}

func TestPredictAndReport(t *testing.T) {
	p, err := Predict(keywordScorer, "a good film")
	require.NoError(t, err)
	assert.Equal(t, corpus.Positive, p.Label)

	var buf bytes.Buffer
	WriteReport(&buf, "a good film", p)
	assert.Equal(t, "Review text: a good film\nPredicted sentiment: Positive\tScore: 0.875\n", buf.String())

	_, err = Predict(keywordScorer, "boom")
	assert.Error(t, err)
}

func TestQuestionsFrom(t *testing.T) {
	qs := QuestionsFrom(config.DefaultQuestions())
	require.Len(t, qs, 2)
	assert.Equal(t, "Question 1 Result", qs[0].ResultColumn)
	assert.Equal(t, "Question 2 Score", qs[1].ScoreColumn)
}

func TestNewRunner_RequiresScorer(t *testing.T) {
	_, err := NewRunner(nil, nil, nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestCheckColumns(t *testing.T) {
	tbl, err := table.New([]string{"Name", "Q1"}, [][]string{{"ann", "good"}})
	require.NoError(t, err)

	assert.NoError(t, CheckColumns(tbl, questions[:1]))

	err = CheckColumns(tbl, questions)
	require.Error(t, err)
	assert.True(t, errors.IsSchema(err))
	assert.Contains(t, err.Error(), "Q2")

	assert.True(t, errors.IsConfiguration(CheckColumns(tbl, nil)))
}

func TestInferTable_MissingColumnWritesNothing(t *testing.T) {
	r, _ := newRunner(t)
	output := filepath.Join(t.TempDir(), "out.csv")
	tbl, err := table.New([]string{"Name", "Q1"}, [][]string{{"ann", "good"}})
	require.NoError(t, err)

	_, err = r.InferTable(context.Background(), tbl, output, questions)
	assert.True(t, errors.IsSchema(err))
	assert.NoFileExists(t, output)
}
