package bus

import (
	"context"
	"time"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
)

// MetricsRecorder records publish outcomes. The metrics package implements
// it without the bus importing metrics.
type MetricsRecorder interface {
	RecordBusPublish(topic string, latencyMs int64, err error)
}

// forward delegates Subscribe and Close to the wrapped bus.
type forward struct {
	inner Bus
}

func (f forward) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return f.inner.Subscribe(ctx, topic, handler)
}

func (f forward) Close() error {
	return f.inner.Close()
}

// InstrumentedBus records publish latency and failures per topic.
type InstrumentedBus struct {
	forward
	metrics MetricsRecorder
}

// NewInstrumentedBus wraps inner. A nil recorder disables recording.
func NewInstrumentedBus(inner Bus, metrics MetricsRecorder) *InstrumentedBus {
	return &InstrumentedBus{forward: forward{inner: inner}, metrics: metrics}
}

func (b *InstrumentedBus) Publish(ctx context.Context, topic string, event Event) error {
	start := time.Now()
	err := b.inner.Publish(ctx, topic, event)
	if b.metrics != nil {
		b.metrics.RecordBusPublish(topic, time.Since(start).Milliseconds(), err)
	}
	return err
}

// LoggedBus journals every event before publishing it. A journal failure
// is logged and does not stop delivery.
type LoggedBus struct {
	forward
	journal *Journal
	log     *logger.Logger
}

// NewLoggedBus wraps inner with journal.
func NewLoggedBus(inner Bus, journal *Journal, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Discard()
	}
	return &LoggedBus{forward: forward{inner: inner}, journal: journal, log: log.WithComponent("journal")}
}

func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Append(topic, event); err != nil {
		b.log.Warn("Failed to journal event", "topic", topic, "event_id", event.ID, "error", err)
	}
	return b.inner.Publish(ctx, topic, event)
}

// Close drains the inner bus, then closes the journal.
func (b *LoggedBus) Close() error {
	err := b.inner.Close()
	if jerr := b.journal.Close(); jerr != nil {
		b.log.Warn("Failed to close journal", "path", b.journal.Path(), "error", jerr)
	}
	return err
}

// Journal returns the journal events are appended to.
func (b *LoggedBus) Journal() *Journal {
	return b.journal
}
