package event

import (
	"time"

	"github.com/google/uuid"
)

// Topic is a slash separated event name such as "operation/applied".
type Topic string

// Topics published by the engine.
const (
	TopicOperationApplied Topic = "operation/applied"
	TopicOperationFailed  Topic = "operation/failed"
	TopicHistoryUndo      Topic = "history/undo"
	TopicHistoryRedo      Topic = "history/redo"
)

// Event represents an event in the system.
// Events are immutable once created.
type Event[T any] struct {
	Topic    Topic
	Payload  T
	Metadata Metadata
}

// Metadata contains standard information attached to every event.
type Metadata struct {
	ID        string
	Timestamp time.Time

	// Source identifies the component that published the event.
	Source string

	// CorrelationID links related events, such as the undo of an
	// operation and the operation itself.
	CorrelationID string
}

// NewEvent creates a new event with the given topic and payload.
func NewEvent[T any](topic Topic, payload T, source string) Event[T] {
	return Event[T]{
		Topic:   topic,
		Payload: payload,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now(),
			Source:    source,
		},
	}
}

// WithCorrelation returns a copy of the event with a correlation ID set.
func (e Event[T]) WithCorrelation(id string) Event[T] {
	e.Metadata.CorrelationID = id
	return e
}

// Envelope is a type-erased event as delivered to handlers.
type Envelope struct {
	Topic    Topic
	Payload  any
	Metadata Metadata
}

// NewEnvelope wraps a typed event.
func NewEnvelope[T any](e Event[T]) Envelope {
	return Envelope{Topic: e.Topic, Payload: e.Payload, Metadata: e.Metadata}
}
