// Package inference scores the free-text question columns of a survey table
// with a trained classifier.
package inference

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
	"github.com/epotapov/SentimentAnalysis/internal/table"
)

const eventSource = "inference"

// Question names a text column and the two columns its prediction is
// written to.
type Question struct {
	Column       string
	ResultColumn string
	ScoreColumn  string
}

// QuestionsFrom converts configured questions.
func QuestionsFrom(cfg []config.QuestionConfig) []Question {
	out := make([]Question, len(cfg))
	for i, q := range cfg {
		out[i] = Question{Column: q.Column, ResultColumn: q.ResultColumn, ScoreColumn: q.ScoreColumn}
	}
	return out
}

// Recorder receives every cell prediction.
type Recorder interface {
	RecordPrediction(question, label string, confidence float64)
}

// Result is a scored copy of an input table.
type Result struct {
	RunID    string
	Table    *table.Table
	Rows     int
	Counts   map[string]map[corpus.Label]int // question column -> label -> rows
	Duration time.Duration
}

// Runner scores tables with one classifier.
type Runner struct {
	scorer   classifier.Scorer
	bus      bus.Bus
	recorder Recorder
	out      io.Writer
	log      *logger.Logger
	progress rate.Sometimes
}

// NewRunner creates a runner. eventBus is optional - if nil, event
// publishing is disabled.
func NewRunner(scorer classifier.Scorer, log *logger.Logger, eventBus bus.Bus) (*Runner, error) {
	if scorer == nil {
		return nil, errors.ConfigurationError("inference requires a classifier")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{
		scorer:   scorer,
		bus:      eventBus,
		out:      os.Stdout,
		log:      log.WithComponent("inference"),
		progress: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}, nil
}

// SetRecorder receives per-cell predictions, usually the metrics registry.
func (r *Runner) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// SetOutput redirects the per-row progress lines. The default is stdout.
func (r *Runner) SetOutput(w io.Writer) {
	r.out = w
}

// CheckColumns fails with a SchemaError naming the first question column
// missing from tbl.
func CheckColumns(tbl *table.Table, questions []Question) error {
	if len(questions) == 0 {
		return errors.ConfigurationError("no question columns configured")
	}
	for _, q := range questions {
		if err := tbl.Require(q.Column); err != nil {
			return err
		}
	}
	return nil
}

// Infer returns a copy of tbl with a result and a score column per question.
// All result columns are appended before all score columns. Every question
// column must exist; a missing one fails with a SchemaError before any row is
// scored. A failure on any cell aborts the run.
func (r *Runner) Infer(ctx context.Context, tbl *table.Table, questions []Question) (*Result, error) {
	if err := CheckColumns(tbl, questions); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	log := r.log.WithRun(runID)

	added := make([]string, 0, 2*len(questions))
	for _, q := range questions {
		added = append(added, q.ResultColumn)
	}
	for _, q := range questions {
		added = append(added, q.ScoreColumn)
	}
	out := tbl.WithColumns(added...)

	counts := make(map[string]map[corpus.Label]int, len(questions))
	for _, q := range questions {
		counts[q.Column] = make(map[corpus.Label]int, 2)
	}

	n := tbl.Len()
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("inference canceled at row %d: %w", i+1, err)
		}
		fmt.Fprintf(r.out, "Testing %d out of %d\n", i+1, n)
		r.progress.Do(func() {
			log.Info("Scoring rows", "row", i+1, "total", n)
		})

		for _, q := range questions {
			p, err := classifier.Predict(r.scorer, tbl.Cell(i, q.Column))
			if err != nil {
				return nil, errors.InferenceError(fmt.Sprintf("scoring row %d", i+1), err).
					WithDetail("column", q.Column)
			}
			if err := out.Set(i, q.ResultColumn, p.Label.Display()); err != nil {
				return nil, err
			}
			if err := out.Set(i, q.ScoreColumn, strconv.FormatFloat(p.Confidence, 'g', -1, 64)); err != nil {
				return nil, err
			}
			counts[q.Column][p.Label]++
			if r.recorder != nil {
				r.recorder.RecordPrediction(q.ResultColumn, string(p.Label), p.Confidence)
			}
		}
	}

	result := &Result{
		RunID:    runID,
		Table:    out,
		Rows:     n,
		Counts:   counts,
		Duration: time.Since(start),
	}
	log.Info("Inference completed", "rows", n, "questions", len(questions), "duration", result.Duration)
	return result, nil
}

// InferFile reads the table at input, scores it and writes the copy to
// output. The source file is never modified.
func (r *Runner) InferFile(ctx context.Context, input, output string, questions []Question) (*Result, error) {
	tbl, err := table.ReadFile(input)
	if err != nil {
		return nil, err
	}
	return r.InferTable(ctx, tbl, output, questions)
}

// InferTable scores an already loaded table and writes the copy to output.
func (r *Runner) InferTable(ctx context.Context, tbl *table.Table, output string, questions []Question) (*Result, error) {
	result, err := r.Infer(ctx, tbl, questions)
	if err != nil {
		return nil, err
	}
	if err := result.Table.WriteFile(output); err != nil {
		return nil, err
	}

	columns := make([]string, len(questions))
	for i, q := range questions {
		columns[i] = q.Column
	}
	r.publish(ctx, result.RunID, bus.InferenceCompleted{
		Rows:       result.Rows,
		Questions:  columns,
		Output:     output,
		DurationMs: result.Duration.Milliseconds(),
	})
	return result, nil
}

func (r *Runner) publish(ctx context.Context, runID string, payload bus.InferenceCompleted) {
	if r.bus == nil {
		return
	}
	event := bus.NewEvent(bus.TopicInferenceCompleted, eventSource, runID, payload)
	if err := r.bus.Publish(ctx, bus.TopicInferenceCompleted, event); err != nil {
		r.log.Warn("Failed to publish event", "topic", bus.TopicInferenceCompleted, "error", err)
	}
}
