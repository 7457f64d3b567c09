package metrics

import (
	"context"
	"time"

	"github.com/epotapov/SentimentAnalysis/internal/bus"
)

// EventSubscriber subscribes to the event bus and updates metrics and the
// per-epoch history.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a new event subscriber.
func NewEventSubscriber(metrics *Metrics, eventBus bus.Bus) *EventSubscriber {
	return &EventSubscriber{
		metrics: metrics,
		bus:     eventBus,
	}
}

// SubscribeToEvents subscribes to all training, inference and audit topics.
func (es *EventSubscriber) SubscribeToEvents(ctx context.Context) error {
	subscriptions := []struct {
		topic   string
		handler bus.Handler
	}{
		{bus.TopicEpochCompleted, es.handleEpochCompleted},
		{bus.TopicRunCompleted, es.handleRunCompleted},
		{bus.TopicInferenceCompleted, es.handleInferenceCompleted},
		{bus.TopicAuditCompleted, es.handleAuditCompleted},
	}
	for _, s := range subscriptions {
		if err := es.bus.Subscribe(ctx, s.topic, s.handler); err != nil {
			return err
		}
	}
	return nil
}

func eventTime(event bus.Event) time.Time {
	if event.Timestamp == 0 {
		return time.Now()
	}
	return time.UnixMilli(event.Timestamp)
}

func (es *EventSubscriber) handleEpochCompleted(ctx context.Context, event bus.Event) error {
	e, err := bus.DecodePayload[bus.EpochCompleted](event)
	if err != nil {
		return err
	}
	es.metrics.RecordEpoch(e)

	ts := eventTime(event)
	if err := es.metrics.history.SaveDataPoint(ctx, SeriesEpochLoss, DataPoint{Timestamp: ts, Value: e.Loss}); err != nil {
		return err
	}
	return es.metrics.history.SaveDataPoint(ctx, SeriesEpochFScore, DataPoint{Timestamp: ts, Value: e.FScore})
}

func (es *EventSubscriber) handleRunCompleted(ctx context.Context, event bus.Event) error {
	r, err := bus.DecodePayload[bus.RunCompleted](event)
	if err != nil {
		return err
	}
	es.metrics.RecordRun(r)
	return es.metrics.history.SaveDataPoint(ctx, SeriesBestFScore, DataPoint{Timestamp: eventTime(event), Value: r.BestFScore})
}

func (es *EventSubscriber) handleInferenceCompleted(_ context.Context, event bus.Event) error {
	r, err := bus.DecodePayload[bus.InferenceCompleted](event)
	if err != nil {
		return err
	}
	es.metrics.RecordInference(r)
	return nil
}

func (es *EventSubscriber) handleAuditCompleted(ctx context.Context, event bus.Event) error {
	a, err := bus.DecodePayload[bus.AuditCompleted](event)
	if err != nil {
		return err
	}
	es.metrics.RecordAudit(a)

	ts := eventTime(event)
	for _, q := range a.Questions {
		if q.Eligible == 0 {
			continue
		}
		dp := DataPoint{Timestamp: ts, Value: float64(q.Correct) / float64(q.Eligible)}
		if err := es.metrics.history.SaveDataPoint(ctx, SeriesAuditAcc+":"+q.Question, dp); err != nil {
			return err
		}
	}
	return nil
}
