package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epotapov/SentimentAnalysis/internal/history"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/table"
)

type workspace struct {
	dir    string
	config string
}

func (w workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	w := workspace{dir: t.TempDir()}

	docs := map[string][]string{
		"pos": {"great film", "wonderful acting", "loved it", "great fun", "wonderful story", "loved the cast"},
		"neg": {"awful film", "terrible acting", "hated it", "awful mess", "terrible story", "hated the cast"},
	}
	for label, texts := range docs {
		dir := w.path(filepath.Join("corpus", label))
		require.NoError(t, os.MkdirAll(dir, 0755))
		for i, text := range texts {
			require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.txt", i)), []byte(text), 0644))
		}
	}

	require.NoError(t, os.WriteFile(w.path("survey.csv"), []byte(
		"Name,Q1,Q2\nann,great wonderful,awful\nbob,terrible,loved it\n"), 0644))

	cfg := fmt.Sprintf(`corpus:
  dir: %q
  limit: 0
train:
  iterations: 3
model:
  buckets: 1024
  learn_rate: 0.5
artifact:
  dir: %q
inference:
  input: %q
  output: %q
  questions:
    - column: Q1
      result_column: Question 1 Result
      score_column: Question 1 Score
      truth_column: Question 1 Evaluation
    - column: Q2
      result_column: Question 2 Result
      score_column: Question 2 Score
      truth_column: Question 2 Evaluation
log:
  level: error
bus:
  event_log: %q
metrics:
  export_path: %q
history:
  path: %q
`, w.path("corpus"), w.path("artifacts"), w.path("survey.csv"), w.path("scored.csv"),
		w.path("events.jsonl"), w.path("metrics.prom"), w.path("history.db"))
	w.config = w.path("sentiment.yaml")
	require.NoError(t, os.WriteFile(w.config, []byte(cfg), 0644))
	return w
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func runs(t *testing.T, w workspace) []history.Run {
	t.Helper()
	ledger, err := history.Open(w.path("history.db"))
	require.NoError(t, err)
	defer ledger.Close()
	list, err := ledger.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	return list
}

func TestRunThenAudit(t *testing.T) {
	w := newWorkspace(t)

	require.NoError(t, execute("run", "-c", w.config))
	assert.FileExists(t, w.path(filepath.Join("artifacts", "model_artifacts", "model.json.gz")))

	scored, err := table.ReadFile(w.path("scored.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Q1", "Q2",
		"Question 1 Result", "Question 2 Result", "Question 1 Score", "Question 2 Score"}, scored.Header())
	assert.Equal(t, 2, scored.Len())

	list := runs(t, w)
	require.Len(t, list, 1)
	assert.Equal(t, history.StatusCompleted, list[0].Status)

	prom, err := os.ReadFile(w.path("metrics.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), "sentiment_epochs_total")

	events, err := os.ReadFile(w.path("events.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(events), "training.run.completed")
	assert.Contains(t, string(events), "inference.completed")
	require.NoError(t, execute("events", "-c", w.config, "--topic", "inference.completed"))

	require.NoError(t, execute("history", "runs", "-c", w.config))
	require.NoError(t, execute("history", "show", list[0].ID, "-c", w.config))
	err = execute("history", "show", "no-such-run", "-c", w.config)
	assert.True(t, errors.IsNotFound(err))

	// The artifact exists now, so training is skipped.
	require.NoError(t, execute("train", "-c", w.config))
	assert.Len(t, runs(t, w), 1)

	evaluated := scored.WithColumns("Question 1 Evaluation", "Question 2 Evaluation")
	for i := range evaluated.Len() {
		require.NoError(t, evaluated.Set(i, "Question 1 Evaluation", evaluated.Cell(i, "Question 1 Result")))
		require.NoError(t, evaluated.Set(i, "Question 2 Evaluation", "N/A"))
	}
	require.NoError(t, evaluated.WriteFile(w.path("evaluated.csv")))

	require.NoError(t, execute("audit", "-c", w.config, "-i", w.path("evaluated.csv")))

	ledger, err := history.Open(w.path("history.db"))
	require.NoError(t, err)
	defer ledger.Close()
	audits, err := ledger.Audits(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, audits, 2)
	for _, a := range audits {
		switch a.Question {
		case "Question 1":
			assert.Equal(t, 2, a.Correct)
			assert.Equal(t, 2, a.Eligible)
		case "Question 2":
			assert.Equal(t, 0, a.Eligible)
		default:
			t.Fatalf("unexpected question %q", a.Question)
		}
	}
}

func TestTrainForceAddsRun(t *testing.T) {
	w := newWorkspace(t)

	require.NoError(t, execute("train", "-c", w.config))
	require.NoError(t, execute("train", "-c", w.config, "--force", "--iterations", "2"))

	list := runs(t, w)
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].Iterations)
}

func TestInferMissingColumn(t *testing.T) {
	w := newWorkspace(t)
	require.NoError(t, os.WriteFile(w.path("other.csv"), []byte("Name,Q1\nann,great\n"), 0644))

	err := execute("infer", "-c", w.config, "-i", w.path("other.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsSchema(err))
	assert.Equal(t, 4, errors.ExitCode(err))
	assert.NoFileExists(t, w.path("scored.csv"))
	assert.NoDirExists(t, w.path("artifacts"))
	assert.Empty(t, runs(t, w))
}

func TestInferWithoutArtifact(t *testing.T) {
	w := newWorkspace(t)

	err := execute("infer", "-c", w.config)
	require.Error(t, err)
	assert.True(t, errors.IsArtifactNotFound(err))
	assert.Equal(t, 3, errors.ExitCode(err))
	assert.NoFileExists(t, w.path("scored.csv"))
	assert.NoDirExists(t, w.path("artifacts"))
	assert.Empty(t, runs(t, w))
}

func TestPredictWithoutArtifact(t *testing.T) {
	w := newWorkspace(t)

	err := execute("predict", "-c", w.config, "a great film")
	require.Error(t, err)
	assert.True(t, errors.IsArtifactNotFound(err))
	assert.NoDirExists(t, w.path("artifacts"))
	assert.Empty(t, runs(t, w))
}

func TestTrainThenInfer(t *testing.T) {
	w := newWorkspace(t)

	require.NoError(t, execute("train", "-c", w.config))
	require.NoError(t, execute("infer", "-c", w.config))
	require.NoError(t, execute("predict", "-c", w.config, "a great film"))

	out, err := table.ReadFile(w.path("scored.csv"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
	assert.Len(t, runs(t, w), 1)
}

func TestHistoryDisabled(t *testing.T) {
	w := newWorkspace(t)
	t.Setenv("SENTIMENT_HISTORY_ENABLED", "false")

	err := execute("history", "runs", "-c", w.config)
	assert.True(t, errors.IsConfiguration(err))
}

func TestBadConfig(t *testing.T) {
	w := newWorkspace(t)
	t.Setenv("SENTIMENT_ITERATIONS", "0")

	err := execute("train", "-c", w.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations must be positive")
}
