package event

import (
	"context"
	"errors"
)

// Priority determines handler execution order.
// Lower values execute first.
type Priority int

const (
	PriorityHigh   Priority = 100
	PriorityNormal Priority = 200

	// PriorityLow is for metrics and logging handlers that run last.
	PriorityLow Priority = 300
)

// Handler processes a delivered event.
type Handler func(ctx context.Context, env Envelope) error

// Typed adapts a handler for one payload type. Envelopes carrying another
// payload type are skipped.
func Typed[T any](fn func(ctx context.Context, e Event[T]) error) Handler {
	return func(ctx context.Context, env Envelope) error {
		payload, ok := env.Payload.(T)
		if !ok {
			return nil
		}
		return fn(ctx, Event[T]{Topic: env.Topic, Payload: payload, Metadata: env.Metadata})
	}
}

// Stats contains event bus statistics.
type Stats struct {
	EventsPublished   uint64
	EventsDelivered   uint64
	HandlerErrors     uint64
	HandlerPanics     uint64
	ActiveSubscribers int
}

// PanicHandler is called when a handler panics.
type PanicHandler func(env Envelope, recovered any)

// Errors returned by the bus.
var (
	ErrNilHandler           = errors.New("event: nil handler")
	ErrInvalidPattern       = errors.New("event: invalid topic pattern")
	ErrSubscriptionNotFound = errors.New("event: subscription not found")
	ErrHandlerPanic         = errors.New("event: handler panicked")
)
