package metrics

import (
	"runtime"
	"sync"
	"time"

	"github.com/epotapov/SentimentAnalysis/internal/bus"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/security"
)

// DurationBuckets are upper bounds in seconds.
var DurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900}

// ProbabilityBuckets are upper bounds for scores in [0, 1].
var ProbabilityBuckets = []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1}

// Metrics holds all application metrics.
type Metrics struct {
	// Training metrics
	TrainingRuns    *Counter
	EpochsTotal     *Counter
	ExamplesTrained *Counter
	BatchesTotal    *Counter
	EpochLoss       *Gauge
	EpochPrecision  *Gauge
	EpochRecall     *Gauge
	EpochFScore     *Gauge
	BestFScore      *Gauge
	EpochDuration   *Histogram

	// Inference metrics
	InferenceRuns        *Counter
	InferenceRows        *Counter
	Predictions          *CounterVec // labels: question, label
	PredictionConfidence *Histogram
	InferenceDuration    *Histogram

	// Audit metrics
	AuditCorrect  *GaugeVec // labels: question
	AuditEligible *GaugeVec // labels: question
	AuditAccuracy *GaugeVec // labels: question

	// Bus metrics
	BusEventsPublished *CounterVec   // labels: topic
	BusEventLatency    *HistogramVec // labels: topic
	BusErrors          *CounterVec   // labels: topic

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes

	// History of per-epoch quality across runs
	history HistoryStore

	startTime time.Time
	mu        sync.RWMutex
}

// New creates a new metrics instance with in-memory history.
func New() *Metrics {
	return newMetrics(NewMemoryHistory(0))
}

// NewWithConfig creates a new metrics instance with the given history
// persistence ("memory" or "redis"). When Redis is unreachable the
// instance falls back to in-memory history and logs a warning.
func NewWithConfig(persistence, redisURL string, log *logger.Logger) *Metrics {
	if log == nil {
		log = logger.Discard()
	}
	if persistence == "redis" && redisURL != "" {
		storage, err := NewRedisStorage(redisURL)
		if err == nil {
			return newMetrics(storage)
		}
		log.Warn("Failed to connect to Redis for metrics history, falling back to in-memory",
			"url", security.MaskURL(redisURL), "error", err)
	}
	return New()
}

func newMetrics(history HistoryStore) *Metrics {
	return &Metrics{
		TrainingRuns: NewCounter(
			"sentiment_training_runs_total",
			"Total number of completed training runs",
			nil,
		),
		EpochsTotal: NewCounter(
			"sentiment_epochs_total",
			"Total number of completed training epochs",
			nil,
		),
		ExamplesTrained: NewCounter(
			"sentiment_examples_trained_total",
			"Total number of examples submitted to classifier updates",
			nil,
		),
		BatchesTotal: NewCounter(
			"sentiment_batches_total",
			"Total number of minibatch updates",
			nil,
		),
		EpochLoss: NewGauge(
			"sentiment_epoch_loss",
			"Summed loss of the last completed epoch",
			nil,
		),
		EpochPrecision: NewGauge(
			"sentiment_epoch_precision",
			"Held-out precision after the last completed epoch",
			nil,
		),
		EpochRecall: NewGauge(
			"sentiment_epoch_recall",
			"Held-out recall after the last completed epoch",
			nil,
		),
		EpochFScore: NewGauge(
			"sentiment_epoch_f_score",
			"Held-out F-score after the last completed epoch",
			nil,
		),
		BestFScore: NewGauge(
			"sentiment_best_f_score",
			"Best held-out F-score of the last completed run",
			nil,
		),
		EpochDuration: NewHistogram(
			"sentiment_epoch_duration_seconds",
			"Wall time of one training epoch including evaluation",
			DurationBuckets,
		),

		InferenceRuns: NewCounter(
			"sentiment_inference_runs_total",
			"Total number of scored tables",
			nil,
		),
		InferenceRows: NewCounter(
			"sentiment_inference_rows_total",
			"Total number of scored table rows",
			nil,
		),
		Predictions: NewCounterVec(
			"sentiment_predictions_total",
			"Predictions by question and label",
			[]string{"question", "label"},
		),
		PredictionConfidence: NewHistogram(
			"sentiment_prediction_confidence",
			"Probability of the winning label",
			ProbabilityBuckets,
		),
		InferenceDuration: NewHistogram(
			"sentiment_inference_duration_seconds",
			"Wall time of one table scoring run",
			DurationBuckets,
		),

		AuditCorrect: NewGaugeVec(
			"sentiment_audit_correct",
			"Rows whose prediction matched the ground truth",
			[]string{"question"},
		),
		AuditEligible: NewGaugeVec(
			"sentiment_audit_eligible",
			"Rows with applicable ground truth",
			[]string{"question"},
		),
		AuditAccuracy: NewGaugeVec(
			"sentiment_audit_accuracy",
			"Share of eligible rows predicted correctly",
			[]string{"question"},
		),

		BusEventsPublished: NewCounterVec(
			"sentiment_bus_events_published_total",
			"Total events published to the bus",
			[]string{"topic"},
		),
		BusEventLatency: NewHistogramVec(
			"sentiment_bus_event_latency_seconds",
			"Bus publish latency",
			[]string{"topic"},
			[]float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		),
		BusErrors: NewCounterVec(
			"sentiment_bus_errors_total",
			"Failed bus publishes",
			[]string{"topic"},
		),

		GoroutineCount: NewGauge(
			"sentiment_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"sentiment_memory_bytes",
			"Allocated heap memory in bytes",
			nil,
		),

		history:   history,
		startTime: time.Now(),
	}
}

// collectSystemMetrics samples the runtime gauges.
func (m *Metrics) collectSystemMetrics() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsage.Set(float64(memStats.Alloc))
}

// RecordEpoch records the outcome of one training epoch.
func (m *Metrics) RecordEpoch(e bus.EpochCompleted) {
	m.EpochsTotal.Inc()
	m.ExamplesTrained.Add(int64(e.Examples))
	m.BatchesTotal.Add(int64(e.Batches))
	m.EpochLoss.Set(e.Loss)
	m.EpochPrecision.Set(e.Precision)
	m.EpochRecall.Set(e.Recall)
	m.EpochFScore.Set(e.FScore)
	m.EpochDuration.Observe(float64(e.DurationMs) / 1000.0)
}

// RecordRun records a completed training run.
func (m *Metrics) RecordRun(r bus.RunCompleted) {
	m.TrainingRuns.Inc()
	m.BestFScore.Set(r.BestFScore)
}

// RecordPrediction records one scored cell.
func (m *Metrics) RecordPrediction(question, label string, confidence float64) {
	m.Predictions.WithLabels(question, label).Inc()
	m.PredictionConfidence.Observe(confidence)
}

// RecordInference records a completed table scoring run.
func (m *Metrics) RecordInference(r bus.InferenceCompleted) {
	m.InferenceRuns.Inc()
	m.InferenceRows.Add(int64(r.Rows))
	m.InferenceDuration.Observe(float64(r.DurationMs) / 1000.0)
}

// RecordAudit records per-question audit counts.
func (m *Metrics) RecordAudit(a bus.AuditCompleted) {
	for _, q := range a.Questions {
		m.AuditCorrect.WithLabels(q.Question).Set(float64(q.Correct))
		m.AuditEligible.WithLabels(q.Question).Set(float64(q.Eligible))
		if q.Eligible > 0 {
			m.AuditAccuracy.WithLabels(q.Question).Set(float64(q.Correct) / float64(q.Eligible))
		}
	}
}

// RecordBusPublish records event bus publish metrics.
func (m *Metrics) RecordBusPublish(topic string, latencyMs int64, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()

	// Convert milliseconds to seconds for Prometheus convention
	latencySeconds := float64(latencyMs) / 1000.0
	m.BusEventLatency.WithLabels(topic).Observe(latencySeconds)

	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// History returns the store holding per-epoch quality series.
func (m *Metrics) History() HistoryStore {
	return m.history
}

// Uptime returns the time since the metrics instance was created.
func (m *Metrics) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Since(m.startTime)
}

// Reset resets the scalar metrics to zero (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TrainingRuns.Reset()
	m.EpochsTotal.Reset()
	m.ExamplesTrained.Reset()
	m.BatchesTotal.Reset()
	m.InferenceRuns.Reset()
	m.InferenceRows.Reset()

	m.EpochLoss.Set(0)
	m.EpochPrecision.Set(0)
	m.EpochRecall.Set(0)
	m.EpochFScore.Set(0)
	m.BestFScore.Set(0)
	m.GoroutineCount.Set(0)
	m.MemoryUsage.Set(0)

	m.startTime = time.Now()
}

// Close releases the history backend.
func (m *Metrics) Close() error {
	if m.history != nil {
		return m.history.Close()
	}
	return nil
}

// IsRedisPersisted returns true if history is persisted to Redis.
func (m *Metrics) IsRedisPersisted() bool {
	_, ok := m.history.(*RedisStorage)
	return ok
}
