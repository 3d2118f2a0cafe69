package session

import (
	"context"
	"sync"

	"github.com/tOgg1/chatsync/internal/models"
)

// DefaultFeedBuffer is the channel capacity of a feed subscription.
const DefaultFeedBuffer = 256

// Feed fans change notifications out to the subscribers of a list.
type Feed interface {
	// Publish delivers n to every current subscriber of n.List.
	Publish(ctx context.Context, n models.ChangeNotification) error

	// Subscribe returns notifications for list. The cancel function stops
	// delivery and closes the channel.
	Subscribe(ctx context.Context, list models.ListID) (<-chan models.ChangeNotification, func(), error)

	Close() error
}

// MemoryFeed is an in-process Feed. Publish blocks while a subscriber's
// buffer is full, so no notification is dropped.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[models.ListID]map[*feedSub]struct{}
	buffer int
	closed bool
}

type feedSub struct {
	ch   chan models.ChangeNotification
	done chan struct{}
	once sync.Once
}

func (s *feedSub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewMemoryFeed creates a MemoryFeed whose subscriptions buffer up to
// buffer notifications.
func NewMemoryFeed(buffer int) *MemoryFeed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &MemoryFeed{
		subs:   make(map[models.ListID]map[*feedSub]struct{}),
		buffer: buffer,
	}
}

// Publish implements Feed.
func (f *MemoryFeed) Publish(ctx context.Context, n models.ChangeNotification) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrClosed
	}

	for sub := range f.subs[n.List] {
		select {
		case sub.ch <- n.Clone():
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe implements Feed.
func (f *MemoryFeed) Subscribe(_ context.Context, list models.ListID) (<-chan models.ChangeNotification, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, nil, ErrClosed
	}

	sub := &feedSub{
		ch:   make(chan models.ChangeNotification, f.buffer),
		done: make(chan struct{}),
	}
	if f.subs[list] == nil {
		f.subs[list] = make(map[*feedSub]struct{})
	}
	f.subs[list][sub] = struct{}{}

	cancel := func() {
		// Unblock a Publish waiting on this subscriber before taking the
		// write lock.
		sub.stop()
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[list][sub]; ok {
			delete(f.subs[list], sub)
			close(sub.ch)
		}
	}
	return sub.ch, cancel, nil
}

// Subscribers returns the number of subscriptions on list.
func (f *MemoryFeed) Subscribers(list models.ListID) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[list])
}

// Close implements Feed. Every open subscription is closed.
func (f *MemoryFeed) Close() error {
	f.mu.RLock()
	for _, subs := range f.subs {
		for sub := range subs {
			sub.stop()
		}
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for list, subs := range f.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(f.subs, list)
	}
	return nil
}

var _ Feed = (*MemoryFeed)(nil)
