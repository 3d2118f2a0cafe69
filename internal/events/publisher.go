package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/serial"
)

// Filter defines criteria for matching events.
type Filter struct {
	// EventTypes filters by event type (nil = all types).
	EventTypes []EventType
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event Event) bool {
	if f == nil || len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if event.Type == t {
			return true
		}
	}
	return false
}

// subscription represents an active event subscription.
type subscription struct {
	id      string
	filter  Filter
	handler Handler
	active  atomic.Bool
}

// Dispatcher fans slice events out to subscribers.
//
// Subscribers are called in registration order. Every Publish call is
// marshalled onto the presentation executor as one unit, so subscribers see
// events in publish order and a batch is never interleaved with another.
// Membership is fixed when a batch is published; a subscriber removed before
// delivery is skipped. Publish is safe for concurrent use, but only batches
// published from one goroutine keep their relative order.
type Dispatcher struct {
	list   models.ListID
	exec   serial.Executor
	logger zerolog.Logger

	mu   sync.RWMutex
	subs []*subscription
	seq  uint64

	closed    atomic.Bool
	delivered atomic.Int64
	dropped   atomic.Int64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithList stamps every published event with list.
func WithList(list models.ListID) DispatcherOption {
	return func(d *Dispatcher) {
		d.list = list
	}
}

// WithLogger overrides the dispatcher logger.
func WithLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher delivering on exec. A nil exec
// delivers synchronously on the publishing goroutine.
func NewDispatcher(exec serial.Executor, opts ...DispatcherOption) *Dispatcher {
	if exec == nil {
		exec = serial.Inline{}
	}
	d := &Dispatcher{
		exec:   exec,
		logger: logging.Component("events"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish delivers events to every matching subscriber.
func (d *Dispatcher) Publish(events ...Event) bool {
	if len(events) == 0 || d.closed.Load() {
		return false
	}

	d.mu.Lock()
	batch := make([]Event, len(events))
	for i, event := range events {
		d.seq++
		event.Seq = d.seq
		if event.List == "" {
			event.List = d.list
		}
		batch[i] = event
	}
	subs := make([]*subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	if len(subs) == 0 {
		return true
	}

	return d.exec.Post(func() {
		for _, event := range batch {
			for _, sub := range subs {
				if d.closed.Load() {
					d.dropped.Add(1)
					return
				}
				if !sub.active.Load() || !sub.filter.Matches(event) {
					continue
				}
				d.deliver(sub, event)
			}
		}
	})
}

// Post runs fn on the presentation executor after everything published
// before it. Nothing runs once the dispatcher is closed.
func (d *Dispatcher) Post(fn func()) bool {
	if fn == nil || d.closed.Load() {
		return false
	}
	return d.exec.Post(func() {
		if d.closed.Load() {
			d.dropped.Add(1)
			return
		}
		fn()
	})
}

func (d *Dispatcher) deliver(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("subscription_id", sub.id).
				Str("event", event.String()).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	sub.handler(event)
	d.delivered.Add(1)
}

// Subscribe registers a handler to receive events matching the filter.
func (d *Dispatcher) Subscribe(id string, filter Filter, handler Handler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sub := range d.subs {
		if sub.id == id {
			return ErrSubscriptionExists
		}
	}

	sub := &subscription{id: id, filter: filter, handler: handler}
	sub.active.Store(true)
	d.subs = append(d.subs, sub)
	return nil
}

// Unsubscribe removes a subscription by ID. Batches already queued skip it.
func (d *Dispatcher) Unsubscribe(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, sub := range d.subs {
		if sub.id != id {
			continue
		}
		sub.active.Store(false)
		d.subs = append(d.subs[:i:i], d.subs[i+1:]...)
		return nil
	}
	return ErrSubscriptionNotFound
}

// SubscriberCount returns the number of active subscribers.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close stops delivery at once, including batches already queued.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}
	d.mu.Lock()
	for _, sub := range d.subs {
		sub.active.Store(false)
	}
	d.subs = nil
	d.mu.Unlock()
}

// Closed reports whether Close was called.
func (d *Dispatcher) Closed() bool {
	return d.closed.Load()
}

// Stats reports delivered handler calls and batches dropped after Close.
func (d *Dispatcher) Stats() (delivered, dropped int64) {
	return d.delivered.Load(), d.dropped.Load()
}

// Errors for dispatcher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from dispatcher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
