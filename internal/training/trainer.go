// Package training runs the epoch loop that fits a classifier to a training
// set, evaluates it on held-out data and persists the averaged parameters.
package training

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/epotapov/SentimentAnalysis/internal/artifact"
	"github.com/epotapov/SentimentAnalysis/internal/batch"
	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/classifier"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
	"github.com/epotapov/SentimentAnalysis/internal/evaluation"
	"github.com/epotapov/SentimentAnalysis/internal/history"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
)

// Header precedes the per-epoch progress lines.
const Header = "Loss\tPrecision\tRecall\tF-score"

const eventSource = "training"

// Config configures a training run.
type Config struct {
	// Iterations is the number of epochs.
	Iterations int

	// Dropout is passed to every classifier update.
	Dropout float64

	// BatchStart, BatchStop and BatchCompound parameterize the per-epoch
	// compounding batch size schedule.
	BatchStart    float64
	BatchStop     float64
	BatchCompound float64

	// Artifact names the stored classifier.
	Artifact string
}

// DefaultConfig returns the standard training settings.
func DefaultConfig() Config {
	return Config{
		Iterations:    20,
		Dropout:       0.35,
		BatchStart:    4.0,
		BatchStop:     32.0,
		BatchCompound: 1.001,
		Artifact:      "model_artifacts",
	}
}

// ConfigFrom builds a Config from application configuration.
func ConfigFrom(train config.TrainConfig, art config.ArtifactConfig) Config {
	return Config{
		Iterations:    train.Iterations,
		Dropout:       train.Dropout,
		BatchStart:    train.BatchStart,
		BatchStop:     train.BatchStop,
		BatchCompound: train.BatchCompound,
		Artifact:      art.Name,
	}
}

// Ledger records the lifecycle of training runs.
type Ledger interface {
	StartRun(ctx context.Context, run history.Run) error
	RecordEpoch(ctx context.Context, runID string, e history.Epoch) error
	FinishRun(ctx context.Context, runID string, o history.Outcome) error
}

// EpochStats is the outcome of one epoch.
type EpochStats struct {
	Epoch    int                `json:"epoch"`
	Loss     float64            `json:"loss"`
	Result   *evaluation.Result `json:"result"`
	Batches  int                `json:"batches"`
	Examples int                `json:"examples"`
	Duration time.Duration      `json:"duration"`
}

// Report describes a completed training run.
type Report struct {
	RunID      string                `json:"run_id"`
	Epochs     []EpochStats          `json:"epochs"`
	Summary    *evaluation.Summary   `json:"summary"`
	Meta       *artifact.Meta        `json:"meta"`
	Location   string                `json:"location"`
	Duration   time.Duration         `json:"duration"`
	Classifier classifier.Classifier `json:"-"`
}

// Trainer fits fresh classifiers and stores them as artifacts.
type Trainer struct {
	cfg     Config
	factory classifier.Factory
	store   artifact.Store
	bus     bus.Bus
	ledger  Ledger
	out     io.Writer
	rng     *rand.Rand
	log     *logger.Logger
}

// NewTrainer creates a trainer. eventBus is optional - if nil, event
// publishing is disabled.
func NewTrainer(cfg Config, factory classifier.Factory, store artifact.Store, log *logger.Logger, eventBus bus.Bus) (*Trainer, error) {
	if factory == nil || store == nil {
		return nil, errors.ConfigurationError("trainer requires a classifier factory and an artifact store")
	}
	if cfg.Iterations < 1 {
		return nil, errors.ConfigurationError(fmt.Sprintf("iterations must be positive, got %d", cfg.Iterations))
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, errors.ConfigurationError(fmt.Sprintf("dropout must be in [0, 1), got %v", cfg.Dropout))
	}
	if cfg.Artifact == "" {
		return nil, errors.ConfigurationError("artifact name is required")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Trainer{
		cfg:     cfg,
		factory: factory,
		store:   store,
		bus:     eventBus,
		out:     os.Stdout,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:     log.WithComponent("training"),
	}, nil
}

// SetLedger enables the run ledger.
func (t *Trainer) SetLedger(l Ledger) {
	t.ledger = l
}

// SetOutput redirects the progress lines. The default is stdout.
func (t *Trainer) SetOutput(w io.Writer) {
	t.out = w
}

// SetRand replaces the random source of the per-epoch reshuffle, which is
// otherwise freshly seeded.
func (t *Trainer) SetRand(rng *rand.Rand) {
	t.rng = rng
}

// Train fits a new classifier to train for the configured number of epochs,
// evaluating on test with averaged parameters after every epoch, and stores
// the averaged parameters under the configured artifact name. Any update
// failure aborts the run. ctx is checked between batches.
func (t *Trainer) Train(ctx context.Context, train, test corpus.Dataset) (*Report, error) {
	if len(train) == 0 {
		return nil, errors.ConfigurationError("training set is empty")
	}

	start := time.Now()
	runID := uuid.NewString()
	log := t.log.WithRun(runID)

	clf, err := t.factory.New(corpus.Labels)
	if err != nil {
		return nil, errors.TrainingError("creating classifier", err)
	}

	digest := train.Fingerprint()
	t.startRun(ctx, log, history.Run{
		ID:          runID,
		Artifact:    t.cfg.Artifact,
		Strategy:    t.factory.Name(),
		Fingerprint: digest,
		TrainSize:   len(train),
		TestSize:    len(test),
		Iterations:  t.cfg.Iterations,
		StartedAt:   start,
	})

	log.Info("Training started",
		"train", len(train),
		"test", len(test),
		"iterations", t.cfg.Iterations,
		"strategy", t.factory.Name())

	report := &Report{RunID: runID, Classifier: clf}
	results := make([]*evaluation.Result, 0, t.cfg.Iterations)

	// The reshuffle works on a private copy so the caller's order is kept.
	data := train.Clone()
	fmt.Fprintln(t.out, Header)

	for epoch := 1; epoch <= t.cfg.Iterations; epoch++ {
		fmt.Fprintf(t.out, "Training iteration %d\n", epoch)
		stats, err := t.epoch(ctx, clf, data, test, epoch)
		if err != nil {
			t.failRun(ctx, log, runID, err)
			return nil, err
		}
		results = append(results, stats.Result)
		report.Epochs = append(report.Epochs, *stats)

		fmt.Fprintf(t.out, "%v\t%v\t%v\t%v\n",
			stats.Loss, stats.Result.Precision, stats.Result.Recall, stats.Result.FScore)
		log.WithEpoch(epoch).Debug("Epoch completed",
			"loss", stats.Loss,
			"f_score", stats.Result.FScore,
			"batches", stats.Batches,
			"duration", stats.Duration)

		t.recordEpoch(ctx, log, runID, stats)
	}

	report.Summary = evaluation.Summarize(results)

	meta, err := artifact.SaveModel(ctx, t.store, t.cfg.Artifact, t.factory.Name(), clf, classifier.ParamsAveraged, artifact.Meta{
		RunID:       runID,
		Epochs:      t.cfg.Iterations,
		FScore:      report.Summary.FinalFScore,
		TrainDigest: digest,
	})
	if err != nil {
		t.failRun(ctx, log, runID, err)
		return nil, err
	}
	report.Meta = meta
	report.Location = t.store.Location(t.cfg.Artifact)
	report.Duration = time.Since(start)

	t.finishRun(ctx, log, report, len(train), len(test))

	log.Info("Training completed",
		"artifact", report.Location,
		"best_epoch", report.Summary.BestEpoch,
		"best_f_score", report.Summary.BestFScore,
		"duration", report.Duration)

	return report, nil
}

func (t *Trainer) epoch(ctx context.Context, clf classifier.Classifier, data, test corpus.Dataset, epoch int) (*EpochStats, error) {
	start := time.Now()
	t.rng.Shuffle(len(data), func(i, j int) {
		data[i], data[j] = data[j], data[i]
	})

	stats := &EpochStats{Epoch: epoch}
	sizes := batch.NewCompounding(t.cfg.BatchStart, t.cfg.BatchStop, t.cfg.BatchCompound)
	err := batch.Each(data, sizes, func(i int, b []corpus.Example) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("training canceled in epoch %d: %w", epoch, err)
		}
		loss, err := clf.Update(b, t.cfg.Dropout)
		if err != nil {
			return errors.TrainingError(fmt.Sprintf("epoch %d batch %d", epoch, i+1), err)
		}
		stats.Loss += loss
		stats.Batches++
		stats.Examples += len(b)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := evaluation.Evaluate(ctx, clf.Averaged(), test)
	if err != nil {
		return nil, fmt.Errorf("evaluating epoch %d: %w", epoch, err)
	}
	stats.Result = result
	stats.Duration = time.Since(start)
	return stats, nil
}

func (t *Trainer) startRun(ctx context.Context, log *logger.Logger, run history.Run) {
	if t.ledger == nil {
		return
	}
	if err := t.ledger.StartRun(ctx, run); err != nil {
		log.Warn("Failed to record run start", "error", err)
	}
}

func (t *Trainer) recordEpoch(ctx context.Context, log *logger.Logger, runID string, s *EpochStats) {
	if t.ledger != nil {
		err := t.ledger.RecordEpoch(ctx, runID, history.Epoch{
			Epoch:      s.Epoch,
			Loss:       s.Loss,
			Precision:  s.Result.Precision,
			Recall:     s.Result.Recall,
			FScore:     s.Result.FScore,
			Batches:    s.Batches,
			Examples:   s.Examples,
			DurationMs: s.Duration.Milliseconds(),
		})
		if err != nil {
			log.Warn("Failed to record epoch", "epoch", s.Epoch, "error", err)
		}
	}

	t.publish(ctx, log, bus.TopicEpochCompleted, runID, bus.EpochCompleted{
		Epoch:      s.Epoch,
		Loss:       s.Loss,
		Precision:  s.Result.Precision,
		Recall:     s.Result.Recall,
		FScore:     s.Result.FScore,
		Batches:    s.Batches,
		Examples:   s.Examples,
		DurationMs: s.Duration.Milliseconds(),
	})
}

func (t *Trainer) finishRun(ctx context.Context, log *logger.Logger, r *Report, trainSize, testSize int) {
	if t.ledger != nil {
		err := t.ledger.FinishRun(ctx, r.RunID, history.Outcome{
			Status:      history.StatusCompleted,
			BestEpoch:   r.Summary.BestEpoch,
			BestFScore:  r.Summary.BestFScore,
			FinalFScore: r.Summary.FinalFScore,
		})
		if err != nil {
			log.Warn("Failed to record run completion", "error", err)
		}
	}

	t.publish(ctx, log, bus.TopicRunCompleted, r.RunID, bus.RunCompleted{
		Artifact:    r.Location,
		Epochs:      len(r.Epochs),
		TrainSize:   trainSize,
		TestSize:    testSize,
		BestEpoch:   r.Summary.BestEpoch,
		BestFScore:  r.Summary.BestFScore,
		FinalFScore: r.Summary.FinalFScore,
		DurationMs:  r.Duration.Milliseconds(),
	})
}

func (t *Trainer) failRun(ctx context.Context, log *logger.Logger, runID string, cause error) {
	log.Error("Training failed", "error", cause)
	if t.ledger == nil {
		return
	}
	// The run context may already be canceled.
	err := t.ledger.FinishRun(context.WithoutCancel(ctx), runID, history.Outcome{
		Status: history.StatusFailed,
		Err:    cause,
	})
	if err != nil {
		log.Warn("Failed to record run failure", "error", err)
	}
}

func (t *Trainer) publish(ctx context.Context, log *logger.Logger, topic, runID string, payload any) {
	if t.bus == nil {
		return
	}
	event := bus.NewEvent(topic, eventSource, runID, payload)
	if err := t.bus.Publish(ctx, topic, event); err != nil {
		log.Warn("Failed to publish event", "topic", topic, "error", err)
	}
}
