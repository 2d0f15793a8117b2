package event

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// Subscription is a registered handler.
type Subscription struct {
	id       string
	pattern  string
	handler  Handler
	priority Priority
	seq      uint64
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// Pattern returns the topic pattern the subscription matches.
func (s *Subscription) Pattern() string { return s.pattern }

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*Subscription)

// WithPriority sets the execution priority of a subscription.
func WithPriority(p Priority) SubscriptionOption {
	return func(s *Subscription) { s.priority = p }
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithPanicHandler sets the function called when a handler panics.
func WithPanicHandler(h PanicHandler) BusOption {
	return func(b *Bus) {
		if h != nil {
			b.panicHandler = h
		}
	}
}

// Bus is a synchronous publish/subscribe hub. Topic patterns use doublestar
// syntax over slash separated topics: "operation/*" matches every
// operation topic, "**" matches everything.
type Bus struct {
	mu   sync.RWMutex
	subs []*Subscription
	seq  uint64

	panicHandler PanicHandler

	published atomic.Uint64
	delivered atomic.Uint64
	errored   atomic.Uint64
	panicked  atomic.Uint64
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{panicHandler: func(Envelope, any) {}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topics matching pattern.
func (b *Bus) Subscribe(pattern string, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	sub := &Subscription{
		id:       uuid.NewString(),
		pattern:  pattern,
		handler:  handler,
		priority: PriorityNormal,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	sub.seq = b.seq
	b.subs = append(b.subs, sub)
	sort.SliceStable(b.subs, func(i, j int) bool {
		if b.subs[i].priority != b.subs[j].priority {
			return b.subs[i].priority < b.subs[j].priority
		}
		return b.subs[i].seq < b.subs[j].seq
	})
	return sub, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return ErrSubscriptionNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// matching returns the subscriptions whose pattern matches topic, in
// execution order.
func (b *Bus) matching(topic Topic) []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Subscription
	for _, s := range b.subs {
		if ok, err := doublestar.Match(s.pattern, string(topic)); err == nil && ok {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers env to every matching handler in the caller's
// goroutine. A failing or panicking handler does not stop delivery to the
// others; their errors are joined into the result.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.published.Add(1)

	var errs []error
	for _, sub := range b.matching(env.Topic) {
		if err := b.deliver(ctx, sub, env); err != nil {
			errs = append(errs, err)
			continue
		}
		b.delivered.Add(1)
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panicked.Add(1)
			b.panicHandler(env, r)
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, env.Topic, r)
		}
	}()
	if err := sub.handler(ctx, env); err != nil {
		b.errored.Add(1)
		return fmt.Errorf("handler for %s: %w", env.Topic, err)
	}
	return nil
}

// PublishEvent publishes a typed event on b.
func PublishEvent[T any](ctx context.Context, b *Bus, e Event[T]) error {
	return b.Publish(ctx, NewEnvelope(e))
}

// Stats returns current bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	active := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		EventsPublished:   b.published.Load(),
		EventsDelivered:   b.delivered.Load(),
		HandlerErrors:     b.errored.Load(),
		HandlerPanics:     b.panicked.Load(),
		ActiveSubscribers: active,
	}
}
