package bus

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/epotapov/SentimentAnalysis/internal/pkg/errors"
	"github.com/epotapov/SentimentAnalysis/internal/pkg/logger"
)

// DefaultDrainTimeout bounds how long Close waits for running handlers.
const DefaultDrainTimeout = 10 * time.Second

// MemoryBus delivers events in process. Every delivery runs in its own
// goroutine, so Publish never waits for subscribers; Drain and Close wait
// for them instead.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	inflight sync.WaitGroup
	log      *logger.Logger

	drainTimeout time.Duration
}

// NewMemoryBus creates an in-memory bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Discard()
	}
	return &MemoryBus{
		handlers:     make(map[string][]Handler),
		drainTimeout: DefaultDrainTimeout,
		log:          log.WithComponent("bus"),
	}
}

// Publish hands event to every subscriber of topic. A topic without
// subscribers is not an error. Handlers get a context that is not canceled
// with ctx.
func (b *MemoryBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	handlers := slices.Clone(b.handlers[topic])
	// Registered while holding the lock so Close cannot miss a delivery.
	for _, h := range handlers {
		b.inflight.Go(func() { b.deliver(context.WithoutCancel(ctx), topic, event, h) })
	}
	b.mu.RUnlock()
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, topic string, event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Event handler panicked", "topic", topic, "event_id", event.ID, "panic", fmt.Sprint(r))
		}
	}()
	if err := h(ctx, event); err != nil {
		b.log.Warn("Event handler failed", "topic", topic, "event_id", event.ID, "error", err)
	}
}

// Subscribe registers handler for topic.
func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

// Close rejects further publishing and waits up to the drain timeout for
// running handlers. Closing twice is a no-op.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.handlers = nil
	b.mu.Unlock()

	if !b.Drain(b.drainTimeout) {
		b.log.Warn("Event drain timeout reached, some handlers may not have completed", "timeout", b.drainTimeout)
	}
	return nil
}

// Drain waits for running handlers. It reports false when timeout elapsed
// first.
func (b *MemoryBus) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
