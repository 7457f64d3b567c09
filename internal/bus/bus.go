// Package bus provides event bus implementations for publishing training,
// inference and audit events to interested subscribers.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type, usually the topic it was published on.
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// RunID links the events of one training, inference or audit run.
	RunID string `json:"run_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType, source, runID string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		RunID:     runID,
		Payload:   payload,
	}
}

// DecodePayload converts the payload of event into T. Payloads published on
// the memory bus arrive as T already; payloads that crossed Kafka or the
// event log arrive as generic JSON and are re-decoded.
func DecodePayload[T any](event Event) (T, error) {
	var out T
	switch p := event.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, fmt.Errorf("nil payload in %s event", event.Type)
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return out, fmt.Errorf("re-encoding %s payload: %w", event.Type, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding %s payload: %w", event.Type, err)
	}
	return out, nil
}

// Topics for different event types.
const (
	// Training topics.
	TopicEpochCompleted = "training.epoch.completed"
	TopicRunCompleted   = "training.run.completed"

	// Inference and audit topics.
	TopicInferenceCompleted = "inference.completed"
	TopicAuditCompleted     = "audit.completed"
)

// EpochCompleted is published after every training epoch.
type EpochCompleted struct {
	Epoch      int     `json:"epoch"`
	Loss       float64 `json:"loss"`
	Precision  float64 `json:"precision"`
	Recall     float64 `json:"recall"`
	FScore     float64 `json:"f_score"`
	Batches    int     `json:"batches"`
	Examples   int     `json:"examples"`
	DurationMs int64   `json:"duration_ms"`
}

// RunCompleted is published when a training run has persisted its artifact.
type RunCompleted struct {
	Artifact    string  `json:"artifact"`
	Epochs      int     `json:"epochs"`
	TrainSize   int     `json:"train_size"`
	TestSize    int     `json:"test_size"`
	BestEpoch   int     `json:"best_epoch"`
	BestFScore  float64 `json:"best_f_score"`
	FinalFScore float64 `json:"final_f_score"`
	DurationMs  int64   `json:"duration_ms"`
}

// InferenceCompleted is published when a table has been scored.
type InferenceCompleted struct {
	Rows       int      `json:"rows"`
	Questions  []string `json:"questions"`
	Output     string   `json:"output"`
	DurationMs int64    `json:"duration_ms"`
}

// QuestionResult is the audit outcome of one question.
type QuestionResult struct {
	Question string `json:"question"`
	Correct  int    `json:"correct"`
	Eligible int    `json:"eligible"`
}

// AuditCompleted is published when an audit has compared all question pairs.
type AuditCompleted struct {
	Input     string           `json:"input"`
	Rows      int              `json:"rows"`
	Questions []QuestionResult `json:"questions"`
}
