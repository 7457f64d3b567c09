package history

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
)

func openLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	started := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, l.StartRun(ctx, Run{
		ID: "run-1", Artifact: "model_artifacts", Strategy: "bow-logistic",
		Fingerprint: "abc", TrainSize: 80, TestSize: 20, Iterations: 2, StartedAt: started,
	}))

	run, err := l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, started, run.StartedAt)
	assert.True(t, run.FinishedAt.IsZero())

	require.NoError(t, l.RecordEpoch(ctx, "run-1", Epoch{Epoch: 1, Loss: 5, Precision: 0.6, Recall: 0.7, FScore: 0.646, Batches: 3, Examples: 80, DurationMs: 12}))
	require.NoError(t, l.RecordEpoch(ctx, "run-1", Epoch{Epoch: 2, Loss: 4, FScore: 0.7}))
	require.NoError(t, l.FinishRun(ctx, "run-1", Outcome{Status: StatusCompleted, BestEpoch: 2, BestFScore: 0.7, FinalFScore: 0.7}))

	run, err = l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 2, run.BestEpoch)
	assert.Equal(t, 0.7, run.BestFScore)
	assert.False(t, run.FinishedAt.IsZero())
	assert.Empty(t, run.Error)

	epochs, err := l.Epochs(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, 1, epochs[0].Epoch)
	assert.Equal(t, 0.646, epochs[0].FScore)
	assert.Equal(t, int64(12), epochs[0].DurationMs)
}

func TestLedger_DuplicateEpochRejected(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	require.NoError(t, l.StartRun(ctx, Run{ID: "r", Artifact: "a"}))
	require.NoError(t, l.RecordEpoch(ctx, "r", Epoch{Epoch: 1}))
	assert.Error(t, l.RecordEpoch(ctx, "r", Epoch{Epoch: 1}))
}

func TestLedger_EpochRequiresRun(t *testing.T) {
	l := openLedger(t)
	assert.Error(t, l.RecordEpoch(context.Background(), "ghost", Epoch{Epoch: 1}))
}

func TestLedger_FailedRun(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	require.NoError(t, l.StartRun(ctx, Run{ID: "r", Artifact: "a"}))
	require.NoError(t, l.FinishRun(ctx, "r", Outcome{Status: StatusFailed, Err: stderrors.New("loss is NaN")}))

	run, err := l.GetRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "loss is NaN", run.Error)
}

func TestLedger_NotFound(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	_, err := l.GetRun(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	err = l.FinishRun(ctx, "missing", Outcome{Status: StatusCompleted})
	assert.True(t, errors.IsNotFound(err))
}

func TestLedger_ListRuns(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.StartRun(ctx, Run{ID: id, Artifact: "m", StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	runs, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLedger_Audits(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)

	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, l.RecordAudit(ctx, []AuditEntry{
		{AuditID: "x", Input: "results.csv", Question: "Question 1", Correct: 1, Eligible: 1, CreatedAt: at},
		{AuditID: "x", Input: "results.csv", Question: "Question 2", Correct: 0, Eligible: 0, CreatedAt: at},
	}))

	entries, err := l.Audits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Question 1", entries[0].Question)
	assert.Equal(t, 1, entries[0].Eligible)
	assert.Equal(t, at, entries[0].CreatedAt)
	assert.Equal(t, "Question 2", entries[1].Question)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.StartRun(ctx, Run{ID: "kept", Artifact: "m"}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, path, l.Path())
	_, err = l.GetRun(ctx, "kept")
	assert.NoError(t, err)
}
