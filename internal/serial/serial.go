// Package serial provides sequential processing contexts.
//
// The sync engine mutates each slice from exactly one context and delivers
// events to presentation code on another. Both are Executors: whatever is
// posted runs one at a time, in the order it was posted.
package serial

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
)

// Executor runs posted functions sequentially in FIFO order.
type Executor interface {
	// Post schedules fn and reports whether it was accepted.
	Post(fn func()) bool
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func()) bool

// Post calls f(fn).
func (f ExecutorFunc) Post(fn func()) bool {
	return f(fn)
}

// Queue is an unbounded FIFO drained by a single goroutine.
type Queue struct {
	name   string
	logger zerolog.Logger

	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}

	posted    int64
	processed int64
	dropped   int64
}

// NewQueue starts a queue. Close must be called to stop its goroutine.
func NewQueue(name string) *Queue {
	q := &Queue{
		name:   name,
		logger: logging.Component("serial").With().Str("queue", name).Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

// Post appends fn to the queue. It never blocks.
func (q *Queue) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, fn)
	q.posted++
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush blocks until everything posted before the call has run.
// It returns false if the queue closed first.
func (q *Queue) Flush() bool {
	done := make(chan struct{})
	if !q.Post(func() { close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-q.done:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Close stops accepting work, runs what is already queued and waits for
// the loop to exit. It must not be called from a posted function.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done

	q.mu.Lock()
	q.logger.Debug().
		Int64("posted", q.posted).
		Int64("processed", q.processed).
		Int64("dropped", q.dropped).
		Msg("queue closed")
	q.mu.Unlock()
}

// Stats reports queue counters.
func (q *Queue) Stats() (posted, processed, dropped int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.posted, q.processed, q.dropped
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, fn := range batch {
			q.run(fn)
		}

		if len(batch) > 0 {
			q.mu.Lock()
			q.processed += int64(len(batch))
			q.mu.Unlock()
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Interface("panic", r).Msg("queued task panicked")
		}
	}()
	fn()
}

// Inline runs posted functions immediately on the calling goroutine.
type Inline struct{}

// Post runs fn.
func (Inline) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Manual collects posted functions until Run is called. It lets callers
// step a context deterministically.
type Manual struct {
	mu      sync.Mutex
	pending []func()
}

// Post appends fn.
func (m *Manual) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
	return true
}

// Pending returns the number of queued functions.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Run executes queued functions, including ones posted while running,
// until the queue is empty. It returns how many ran.
func (m *Manual) Run() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		fn()
		ran++
	}
}
