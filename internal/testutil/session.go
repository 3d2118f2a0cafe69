// Package testutil provides helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/session"
)

// Entry builds a list entry whose tie-break is its id.
func Entry(id int64, pinned bool, order uint64) models.Entry {
	return models.Entry{
		ID:       models.ChatID(id),
		Position: models.Position{Pinned: pinned, Order: order, TieBreak: id},
		Metadata: models.Snapshot{Title: fmt.Sprintf("chat %d", id)},
	}
}

// Entries builds n unpinned entries with ids 1..n in list order.
func Entries(n int) []models.Entry {
	out := make([]models.Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Entry(int64(i), false, uint64(10*(n-i+1))))
	}
	return out
}

// Session is a scripted session.Session. FetchPage serves pages from an
// in-memory copy of each list; notifications are pushed with Emit.
type Session struct {
	mu       sync.Mutex
	lists    map[models.ListID][]models.Entry
	subs     map[int]*subscription
	nextSub  int
	requests []session.PageRequest
	failures []error
	hold     chan struct{}
}

type subscription struct {
	list models.ListID
	ch   chan models.ChangeNotification
}

// NewSession creates an empty scripted session.
func NewSession() *Session {
	return &Session{
		lists: make(map[models.ListID][]models.Entry),
		subs:  make(map[int]*subscription),
	}
}

// SetEntries replaces the content of list.
func (s *Session) SetEntries(list models.ListID, entries ...models.Entry) {
	sorted := make([]models.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Position.Before(sorted[j].Position)
	})
	s.mu.Lock()
	s.lists[list] = sorted
	s.mu.Unlock()
}

// FailNext makes the next FetchPage call return err.
func (s *Session) FailNext(err error) {
	s.mu.Lock()
	s.failures = append(s.failures, err)
	s.mu.Unlock()
}

// Hold blocks FetchPage calls made from now on until release is called.
func (s *Session) Hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Requests returns the page requests seen so far.
func (s *Session) Requests() []session.PageRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.PageRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Subscriptions returns the number of open subscriptions.
func (s *Session) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Emit delivers notifications to every subscriber, whatever list it
// follows.
func (s *Session) Emit(notifications ...models.ChangeNotification) {
	s.mu.Lock()
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, n := range notifications {
		for _, sub := range subs {
			sub.ch <- n
		}
	}
}

// Subscribe implements session.Session.
func (s *Session) Subscribe(list models.ListID, _ models.Filter) (<-chan models.ChangeNotification, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	sub := &subscription{list: list, ch: make(chan models.ChangeNotification, 256)}
	s.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// FetchPage implements session.Session.
func (s *Session) FetchPage(ctx context.Context, req session.PageRequest) ([]models.Entry, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	hold := s.hold
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}

	limit := req.EffectiveLimit()
	var page []models.Entry
	for _, entry := range s.lists[req.List] {
		if req.After != nil && !req.After.Before(entry.Position) {
			continue
		}
		if !req.Filter.Matches(entry.Metadata) {
			continue
		}
		page = append(page, entry)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

var _ session.Session = (*Session)(nil)
