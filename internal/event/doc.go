// Package event provides the publish/subscribe bus the engine reports
// through.
//
// Events carry a typed payload and standard metadata:
//
//	e := event.NewEvent(event.TopicOperationApplied, op, "dispatcher")
//	err := event.PublishEvent(ctx, bus, e)
//
// Subscribers use doublestar patterns over slash separated topics:
//
//	bus.Subscribe("operation/*", event.Typed(func(ctx context.Context, e event.Event[*history.Operation]) error {
//		...
//	}))
//
// Delivery is synchronous and panic-isolated: a handler that panics is
// counted and reported, and the remaining handlers still run.
package event
