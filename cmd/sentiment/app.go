package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/epotapov/SentimentAnalysis/internal/artifact"
	"github.com/epotapov/SentimentAnalysis/internal/audit"
	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/classifier/bow"
	"github.com/epotapov/SentimentAnalysis/internal/config"
	"github.com/epotapov/SentimentAnalysis/internal/corpus"
	"github.com/epotapov/SentimentAnalysis/internal/history"
	"github.com/epotapov/SentimentAnalysis/internal/inference"
	"github.com/epotapov/SentimentAnalysis/internal/metrics"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/security"
	"github.com/epotapov/SentimentAnalysis/internal/training"
)

// app holds the services shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	bus     bus.Bus
	ledger  *history.Ledger // nil when history is disabled
	store   artifact.Store
	factory bow.Factory

	closers []io.Closer
}

// newApp loads the configuration named by the --config flag and wires the
// logger, metrics, event bus, artifact store and run ledger.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	a := &app{cfg: cfg}
	if cfg.Log.File != "" {
		log, closer, err := logger.NewFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
		a.log = log
		a.closers = append(a.closers, closer)
	} else {
		a.log = logger.New(cfg.Log.Level, cfg.Log.Format)
	}

	// Metrics come first: the bus is instrumented with them.
	a.metrics = metrics.NewWithConfig(cfg.Metrics.Persistence, cfg.Metrics.RedisURL, a.log)

	inner, err := bus.NewBus(cfg.Bus, a.log)
	if err != nil {
		a.close()
		return nil, err
	}
	a.bus = bus.NewInstrumentedBus(inner, a.metrics)
	if err := metrics.NewEventSubscriber(a.metrics, a.bus).SubscribeToEvents(cmd.Context()); err != nil {
		a.close()
		return nil, err
	}

	a.store, err = artifact.New(cfg.Artifact)
	if err != nil {
		a.close()
		return nil, err
	}
	a.factory = bow.NewFactory(cfg.Model)
	if cfg.Artifact.Backend != "file" {
		a.log.Debug("Remote artifact store", "s3", security.MaskSensitiveMap(map[string]string{
			"endpoint":   cfg.Artifact.S3.Endpoint,
			"bucket":     cfg.Artifact.S3.Bucket,
			"access_key": cfg.Artifact.S3.AccessKey,
			"secret_key": cfg.Artifact.S3.SecretKey,
		}))
	}

	if cfg.History.Enabled {
		a.ledger, err = history.Open(cfg.History.Path)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.log.Debug("Initialized",
		"artifact_backend", cfg.Artifact.Backend,
		"bus", cfg.Bus.Type,
		"metrics", cfg.Metrics.Persistence,
		"history", cfg.History.Enabled,
	)
	return a, nil
}

// close drains the bus, exports metrics and releases every resource.
func (a *app) close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("Failed to close event bus", "error", err)
		}
	}
	if a.metrics != nil {
		if path := a.cfg.Metrics.ExportPath; path != "" {
			if err := a.metrics.WriteFile(path); err != nil {
				a.log.Warn("Failed to export metrics", "path", path, "error", err)
			}
		}
		_ = a.metrics.Close()
	}
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}

func (a *app) trainer() (*training.Trainer, error) {
	t, err := training.NewTrainer(training.ConfigFrom(a.cfg.Train, a.cfg.Artifact), a.factory, a.store, a.log, a.bus)
	if err != nil {
		return nil, err
	}
	if a.ledger != nil {
		t.SetLedger(a.ledger)
	}
	return t, nil
}

func (a *app) loadCorpus() (train, test corpus.Dataset, err error) {
	opts := corpus.DefaultOptions(a.cfg.Corpus.Dir)
	opts.SplitRatio = a.cfg.Corpus.SplitRatio
	opts.Limit = a.cfg.Corpus.Limit
	train, test, err = corpus.LoadWithOptions(opts, corpus.NewSource(a.cfg.Corpus.Seed))
	if err != nil {
		return nil, nil, err
	}
	pos, neg := train.Counts()
	a.log.Info("Loaded corpus", "dir", opts.Dir, "train", len(train), "test", len(test), "train_pos", pos, "train_neg", neg)
	return train, test, nil
}

// ensureModel returns the stored classifier, training it first when the
// artifact is missing.
func (a *app) ensureModel(ctx context.Context) (*training.Model, error) {
	t, err := a.trainer()
	if err != nil {
		return nil, err
	}
	return t.EnsureModel(ctx, a.loadCorpus)
}

// loadModel returns the stored classifier without ever training. A missing
// artifact is an ArtifactNotFoundError.
func (a *app) loadModel(ctx context.Context) (*training.Model, error) {
	clf, meta, err := artifact.LoadModel(ctx, a.store, a.cfg.Artifact.Name, a.factory)
	if err != nil {
		return nil, err
	}
	a.log.Debug("Loaded artifact", "location", a.store.Location(a.cfg.Artifact.Name), "run_id", meta.RunID)
	return &training.Model{Classifier: clf, Meta: meta}, nil
}

func (a *app) runner(model *training.Model) (*inference.Runner, error) {
	r, err := inference.NewRunner(model.Classifier, a.log, a.bus)
	if err != nil {
		return nil, err
	}
	r.SetRecorder(a.metrics)
	return r, nil
}

func (a *app) auditor() *audit.Auditor {
	aud := audit.NewAuditor(a.cfg.Audit.NotApplicable, a.log, a.bus)
	if a.ledger != nil {
		aud.SetLedger(a.ledger)
	}
	return aud
}

// withApp runs fn with a wired app and releases it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(cmd.Context(), a)
}
