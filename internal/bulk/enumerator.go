// Package bulk walks entire remote chat lists independently of any loaded
// slice.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/serial"
	"github.com/tOgg1/chatsync/internal/session"
)

// DefaultPageSize is the number of entries requested per page.
const DefaultPageSize = 100

// ErrNoProgress is reported when the backend returns a page that does not
// advance past the previous one.
var ErrNoProgress = errors.New("page did not advance")

// Predicate selects entries during an enumeration.
type Predicate func(entry models.Entry) bool

// All matches every entry.
func All(models.Entry) bool { return true }

// Unread matches chats with unread messages.
func Unread(e models.Entry) bool { return e.Metadata.UnreadCount > 0 }

// Muted matches muted chats.
func Muted(e models.Entry) bool { return e.Metadata.Muted }

// Mentioned matches chats with unread mentions.
func Mentioned(e models.Entry) bool { return e.Metadata.MentionCount > 0 }

// Request describes one enumeration.
type Request struct {
	List      models.ListID
	Filter    models.Filter
	Predicate Predicate // nil matches everything
}

// Callbacks receive enumeration results on the presentation executor.
// Any of them may be nil.
type Callbacks struct {
	OnMatch func(entry models.Entry)

	// OnComplete is called with final=true exactly once when the walk ends,
	// successfully or not. With Options.Progress it is also called with
	// final=false after every page but the last.
	OnComplete func(final bool)

	// OnError is called before the final OnComplete when a page fails.
	OnError func(err error)
}

// Options configures an Enumerator.
type Options struct {
	PageSize int

	// Progress reports OnComplete(false) after each non-final page.
	Progress bool

	// Presentation runs callbacks. Default: serial.Inline
	Presentation serial.Executor
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{PageSize: DefaultPageSize}
}

// Enumerator runs full-list walks against a session.
type Enumerator struct {
	sess   session.Session
	opts   Options
	logger zerolog.Logger
}

// New creates an Enumerator.
func New(sess session.Session, opts Options) *Enumerator {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Presentation == nil {
		opts.Presentation = serial.Inline{}
	}
	return &Enumerator{
		sess:   sess,
		opts:   opts,
		logger: logging.Component("bulk"),
	}
}

// Token controls a running enumeration.
type Token struct {
	id       string
	cancel   context.CancelFunc
	canceled atomic.Bool
	done     chan struct{}
	matched  atomic.Int64
}

// ID returns the enumeration id.
func (t *Token) ID() string {
	return t.id
}

// Cancel stops the enumeration. Every callback checks the token right
// before it runs, so once Cancel returns on the presentation executor no
// callback follows; a callback already running on another goroutine may
// still finish. Cancelling a finished enumeration has no effect.
func (t *Token) Cancel() {
	t.canceled.Store(true)
	t.cancel()
}

// Canceled reports whether Cancel was called.
func (t *Token) Canceled() bool {
	return t.canceled.Load()
}

// Done is closed when the walk stops fetching.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Matched returns the number of OnMatch calls delivered so far.
func (t *Token) Matched() int64 {
	return t.matched.Load()
}

// Enumerate starts walking req.List and returns immediately.
func (e *Enumerator) Enumerate(ctx context.Context, req Request, cb Callbacks) *Token {
	ctx, cancel := context.WithCancel(ctx)
	t := &Token{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if req.Predicate == nil {
		req.Predicate = All
	}
	go e.walk(ctx, t, req, cb)
	return t
}

func (e *Enumerator) walk(ctx context.Context, t *Token, req Request, cb Callbacks) {
	defer close(t.done)
	defer t.cancel()

	logger := e.logger.With().
		Str("enumeration_id", t.id).
		Str("list_id", string(req.List)).
		Logger()

	seen := make(map[models.ChatID]struct{})
	var after *models.Position
	pages := 0

	for {
		if ctx.Err() != nil {
			t.canceled.Store(true)
			return
		}

		// One extra entry tells whether another page follows.
		page, err := e.sess.FetchPage(ctx, session.PageRequest{
			List:   req.List,
			Filter: req.Filter,
			After:  after,
			Limit:  e.opts.PageSize + 1,
		})
		if err != nil {
			if ctx.Err() != nil {
				t.canceled.Store(true)
				return
			}
			logger.Warn().Err(err).Int("pages", pages).Msg("enumeration failed")
			e.fail(t, cb, fmt.Errorf("enumerate %s page %d: %w", req.List, pages+1, err))
			return
		}
		pages++

		final := len(page) <= e.opts.PageSize
		if !final {
			page = page[:e.opts.PageSize]
		}

		var matches []models.Entry
		for _, entry := range page {
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			if req.Predicate(entry) {
				matches = append(matches, entry)
			}
		}

		e.deliver(t, cb, matches, final)
		logger.Debug().Int("page", pages).Int("matches", len(matches)).Bool("final", final).Msg("page enumerated")

		if final {
			return
		}

		last := page[len(page)-1].Position
		if after != nil && !after.Before(last) {
			e.fail(t, cb, fmt.Errorf("enumerate %s page %d: %w", req.List, pages, ErrNoProgress))
			return
		}
		after = &last
	}
}

func (e *Enumerator) deliver(t *Token, cb Callbacks, matches []models.Entry, final bool) {
	progress := e.opts.Progress
	e.opts.Presentation.Post(func() {
		for _, entry := range matches {
			if t.canceled.Load() {
				return
			}
			if cb.OnMatch != nil {
				cb.OnMatch(entry)
			}
			t.matched.Add(1)
		}
		if t.canceled.Load() {
			return
		}
		if cb.OnComplete != nil && (final || progress) {
			cb.OnComplete(final)
		}
	})
}

func (e *Enumerator) fail(t *Token, cb Callbacks, err error) {
	e.opts.Presentation.Post(func() {
		if t.canceled.Load() {
			return
		}
		if cb.OnError != nil {
			cb.OnError(err)
		}
		if t.canceled.Load() {
			return
		}
		if cb.OnComplete != nil {
			cb.OnComplete(true)
		}
	})
}

// Count walks req synchronously and returns the number of matches.
func (e *Enumerator) Count(ctx context.Context, req Request) (int, error) {
	counter := &Enumerator{
		sess:   e.sess,
		opts:   Options{PageSize: e.opts.PageSize, Presentation: serial.Inline{}},
		logger: e.logger,
	}

	var count int
	var failure error
	t := counter.Enumerate(ctx, req, Callbacks{
		OnMatch: func(models.Entry) { count++ },
		OnError: func(err error) { failure = err },
	})

	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Cancel()
		<-t.Done()
		return 0, ctx.Err()
	}
	if t.Canceled() {
		return 0, context.Canceled
	}
	return count, failure
}
