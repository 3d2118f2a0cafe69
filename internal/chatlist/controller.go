// Package chatlist keeps a paginated local slice of a remote chat list in
// sync with its backend.
//
// A Controller owns one Entry Store. Every mutation runs on the backend
// executor; diffs and completion callbacks reach subscribers through an
// events.Dispatcher bound to the presentation executor.
package chatlist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/events"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/serial"
	"github.com/tOgg1/chatsync/internal/session"
	"github.com/tOgg1/chatsync/internal/store"
)

// Controller errors.
var (
	ErrAlreadyInitialized = errors.New("slice already initialized")
	ErrDestroyed          = errors.New("slice destroyed")
	ErrNotFound           = errors.New("chat not found")
	ErrNoSession          = errors.New("session is required")
	ErrOutsideWindow      = errors.New("position is outside the loaded window")
	ErrOrderExhausted     = errors.New("no order left above the head")
)

// Config contains configuration for a Controller.
type Config struct {
	List   models.ListID
	Filter models.Filter

	// BatchSize is the page size used when a caller passes none.
	// Default: 50
	BatchSize int

	// Backend runs every mutation of the slice. When nil the controller
	// starts its own queue and closes it on Destroy.
	Backend serial.Executor

	// Presentation receives events and completion callbacks.
	// Default: serial.Inline
	Presentation serial.Executor
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		List:      models.ListMain,
		BatchSize: 50,
	}
}

// Stats counts what happened to incoming changes.
type Stats struct {
	Received    int64 // notifications accepted from the session
	Rejected    int64 // wrong list or malformed
	Coalesced   int64 // notifications folded into a later one for the same chat
	Applied     int64 // reconciliations that changed the slice
	Ignored     int64 // outside the loaded window
	Violations  int64 // dropped because they would break the order
	Pages       int64
	FetchErrors int64
}

// FetchError reports a failed page request. The slice is left as it was
// before the request, so the load can be retried.
type FetchError struct {
	List  models.ListID
	After *models.Position
	Limit int
	Err   error
}

func (e *FetchError) Error() string {
	after := "top"
	if e.After != nil {
		after = e.After.String()
	}
	return fmt.Sprintf("fetch %s after %s (limit %d): %v", e.List, after, e.Limit, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether issuing the request again may succeed.
func (e *FetchError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, session.ErrClosed)
}

// Controller maintains one (list, filter) slice.
type Controller struct {
	config     Config
	sess       session.Session
	backend    serial.Executor
	ownQueue   *serial.Queue
	dispatcher *events.Dispatcher
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	store       *store.Store
	state       models.ListState
	cursor      *models.Position
	endReached  bool
	inFlight    bool
	gen         uint64
	live        *targetSet
	pending     []models.ChangeNotification
	drainQueued bool
	unsubscribe func()
	raises      []pendingRaise
	stats       Stats
}

// pendingRaise is a BringToTop waiting for a page that loads its group.
type pendingRaise struct {
	candidate models.Entry
	onDone    func(error)
}

// New creates a controller in the Unstarted state.
func New(sess session.Session, config Config) (*Controller, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if config.List == "" {
		return nil, models.ErrInvalidList
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	c := &Controller{
		config: config,
		sess:   sess,
		logger: logging.WithList("chatlist", string(config.List)),
		store:  store.New(),
		state:  models.StateUnstarted,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.backend = config.Backend
	if c.backend == nil {
		c.ownQueue = serial.NewQueue("chatlist:" + string(config.List))
		c.backend = c.ownQueue
	}
	c.dispatcher = events.NewDispatcher(config.Presentation,
		events.WithList(config.List),
		events.WithLogger(c.logger),
	)
	return c, nil
}

// List returns the list the slice follows.
func (c *Controller) List() models.ListID {
	return c.config.List
}

// Filter returns the filter the slice was created with.
func (c *Controller) Filter() models.Filter {
	return c.config.Filter
}

// Subscribe registers an additional listener and returns its id.
func (c *Controller) Subscribe(filter events.Filter, handler events.Handler) (string, error) {
	id := uuid.NewString()
	if err := c.dispatcher.Subscribe(id, filter, handler); err != nil {
		return "", err
	}
	return id, nil
}

// Unsubscribe removes a listener added with Subscribe or Initialize.
func (c *Controller) Unsubscribe(id string) error {
	return c.dispatcher.Unsubscribe(id)
}

// Initialize subscribes to backend changes and requests the first page.
// listener may be nil. onDone runs on the presentation executor after the
// events of the first page.
func (c *Controller) Initialize(listener events.Handler, batchSize int, onDone func(error)) error {
	if batchSize <= 0 {
		batchSize = c.config.BatchSize
	}

	c.mu.Lock()
	switch c.state {
	case models.StateUnsubscribed:
		c.mu.Unlock()
		return ErrDestroyed
	case models.StateUnstarted:
	default:
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}

	if listener != nil {
		if err := c.dispatcher.Subscribe("listener-"+uuid.NewString(), events.Filter{}, listener); err != nil {
			c.mu.Unlock()
			return err
		}
	}

	c.state = models.StateLoading
	c.inFlight = true
	c.gen++
	gen := c.gen
	c.live = newTargetSet()

	ch, cancel := c.sess.Subscribe(c.config.List, c.config.Filter)
	c.unsubscribe = cancel
	c.mu.Unlock()

	c.logger.Debug().Int("batch_size", batchSize).Msg("initializing slice")

	go c.pump(ch)

	req := session.PageRequest{
		List:   c.config.List,
		Filter: c.config.Filter,
		Limit:  batchSize,
	}
	c.backend.Post(func() {
		c.publish([]events.Event{events.StateChanged(models.StateLoading, models.StateUnstarted)})
		c.fetch(gen, req, models.StateEndNotReached, onDone)
	})
	return nil
}

// LoadMore extends the window by up to count entries. It returns false
// without fetching when the slice cannot load right now (a request is in
// flight, the end was reached, or the slice is not initialized); onDone is
// not called in that case.
func (c *Controller) LoadMore(count int, onDone func(error)) bool {
	if count <= 0 {
		count = c.config.BatchSize
	}

	c.mu.Lock()
	if c.inFlight || c.state != models.StateEndNotReached {
		c.mu.Unlock()
		return false
	}
	prev := c.state
	c.state = models.StateLoading
	c.inFlight = true
	c.gen++
	gen := c.gen
	c.live = newTargetSet()
	var after *models.Position
	if c.cursor != nil {
		pos := *c.cursor
		after = &pos
	}
	c.mu.Unlock()

	req := session.PageRequest{
		List:   c.config.List,
		Filter: c.config.Filter,
		After:  after,
		Limit:  count,
	}
	c.backend.Post(func() {
		c.publish([]events.Event{events.StateChanged(models.StateLoading, prev)})
		c.fetch(gen, req, prev, onDone)
	})
	return true
}

// BringToTop optimistically moves id to the head of its pinned group.
// When id is not loaded, fallback fetches it and it is inserted at the head.
// Later backend changes for the chat win.
func (c *Controller) BringToTop(id models.ChatID, fallback func(ctx context.Context) (models.Entry, error), onDone func(error)) error {
	if id <= 0 {
		return models.ErrInvalidChatID
	}
	c.mu.RLock()
	destroyed := c.state == models.StateUnsubscribed
	c.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}

	c.backend.Post(func() {
		c.mu.RLock()
		entry, ok := c.store.Get(id)
		c.mu.RUnlock()
		if ok {
			c.raise(entry, onDone)
			return
		}
		if fallback == nil {
			c.done(onDone, fmt.Errorf("bring chat %d to top: %w", id, ErrNotFound))
			return
		}
		go func() {
			fetched, err := fallback(c.ctx)
			c.backend.Post(func() {
				if err != nil {
					c.done(onDone, fmt.Errorf("bring chat %d to top: %w", id, err))
					return
				}
				fetched.ID = id
				c.raise(fetched, onDone)
			})
		}()
	})
	return nil
}

// Destroy unsubscribes from the backend and stops all dispatch. Events and
// callbacks not yet delivered are dropped.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.state == models.StateUnsubscribed {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = models.StateUnsubscribed
	c.inFlight = false
	c.gen++
	c.pending = nil
	c.live = nil
	c.raises = nil
	c.store.Clear()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	c.dispatcher.Close()
	c.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	if c.ownQueue != nil {
		go c.ownQueue.Close()
	}

	c.logger.Debug().Str("prev_state", prev.String()).Msg("slice destroyed")
}

// State returns the current list state.
func (c *Controller) State() models.ListState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// CanLoad reports whether LoadMore would issue a request.
func (c *Controller) CanLoad() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == models.StateEndNotReached && !c.inFlight
}

// IsEndReached reports whether every entry of the list has been loaded.
func (c *Controller) IsEndReached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endReached
}

// Cursor returns the lower bound of the loaded window.
func (c *Controller) Cursor() (models.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cursor == nil {
		return models.Position{}, false
	}
	return *c.cursor, true
}

// Len returns the number of loaded entries. Read accessors reflect the
// backend side of the slice, which may be ahead of delivered events.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}

// At returns the entry at index.
func (c *Controller) At(index int) (models.Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.At(index)
}

// IndexOf returns the index of id.
func (c *Controller) IndexOf(id models.ChatID) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.IndexOf(id)
}

// Entries returns a copy of the loaded entries in order.
func (c *Controller) Entries() []models.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Entries()
}

// Stats returns a copy of the change counters.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// pump forwards session notifications until the slice is destroyed.
func (c *Controller) pump(ch <-chan models.ChangeNotification) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			c.enqueue(n)
		}
	}
}

// enqueue buffers n and schedules a drain on the backend executor.
// Everything buffered before the drain runs is coalesced together.
func (c *Controller) enqueue(n models.ChangeNotification) {
	c.mu.Lock()
	if c.state == models.StateUnsubscribed {
		c.mu.Unlock()
		return
	}
	if n.List != c.config.List {
		c.stats.Rejected++
		c.mu.Unlock()
		c.logger.Warn().
			Str("notification_list", string(n.List)).
			Int64("chat_id", int64(n.ChatID)).
			Msg("rejecting notification for another list")
		return
	}
	if err := n.Validate(); err != nil {
		c.stats.Rejected++
		c.mu.Unlock()
		c.logger.Warn().Err(err).Int64("chat_id", int64(n.ChatID)).Msg("rejecting malformed notification")
		return
	}

	c.stats.Received++
	c.pending = append(c.pending, n.Clone())
	schedule := !c.drainQueued
	c.drainQueued = true
	c.mu.Unlock()

	if schedule {
		c.backend.Post(c.drain)
	}
}

func (c *Controller) drain() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.drainQueued = false
	if c.state == models.StateUnsubscribed || len(batch) == 0 {
		c.mu.Unlock()
		return
	}

	targets := coalesce(batch)
	c.stats.Coalesced += int64(len(batch) - targets.len())

	var out []events.Event
	var conflicts []target
	for _, t := range targets.list() {
		if c.inFlight && c.live != nil {
			c.live.add(t)
		}
		result, err := c.tryApplyLocked(t, &out)
		if result == outcomeViolation && errors.Is(err, store.ErrPositionConflict) {
			conflicts = append(conflicts, t)
			continue
		}
		c.countLocked(t, result, err)
	}
	// A chat can move into a position another chat of the batch vacates
	// later in the batch.
	for _, t := range conflicts {
		c.applyLocked(t, &out)
	}
	c.mu.Unlock()

	c.publish(out)
}

func (c *Controller) fetch(gen uint64, req session.PageRequest, prev models.ListState, onDone func(error)) {
	if c.ctx.Err() != nil {
		return
	}
	go func() {
		entries, err := c.sess.FetchPage(c.ctx, req)
		c.backend.Post(func() {
			c.pageLoaded(gen, req, prev, entries, err, onDone)
		})
	}()
}

// pageLoaded applies a page result. Live changes seen while the request
// was in flight override the fetched copies of the same chats.
func (c *Controller) pageLoaded(gen uint64, req session.PageRequest, prev models.ListState, entries []models.Entry, err error, onDone func(error)) {
	c.mu.Lock()
	if c.state == models.StateUnsubscribed || gen != c.gen || !c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = false
	live := c.live
	c.live = nil

	if err != nil {
		c.stats.FetchErrors++
		c.state = prev
		state := c.state
		raises := c.raises
		c.raises = nil
		c.mu.Unlock()

		fetchErr := &FetchError{List: req.List, After: req.After, Limit: req.EffectiveLimit(), Err: err}
		c.logger.Warn().Err(err).Bool("retryable", fetchErr.Retryable()).Msg("page request failed")
		c.publish([]events.Event{events.StateChanged(state, models.StateLoading)})
		c.done(onDone, fetchErr)
		for _, pr := range raises {
			c.done(pr.onDone, fmt.Errorf("bring chat %d to top: %w", pr.candidate.ID, fetchErr))
		}
		return
	}

	c.stats.Pages++
	if len(entries) < req.EffectiveLimit() {
		c.endReached = true
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1].Position
		if c.cursor == nil || c.cursor.Before(last) {
			c.cursor = &last
		}
	}

	var out []events.Event
	fetched := make(map[models.ChatID]struct{}, len(entries))
	for _, entry := range entries {
		fetched[entry.ID] = struct{}{}
		t := entryTarget(entry)
		if live != nil {
			if lt, ok := live.get(entry.ID); ok {
				t.merge(lt)
			}
		}
		c.applyLocked(t, &out)
	}
	if live != nil {
		for _, t := range live.list() {
			if _, ok := fetched[t.id]; ok {
				continue
			}
			c.applyLocked(t, &out)
		}
	}

	c.state = models.StateEndNotReached
	if c.endReached {
		c.state = models.StateEndReached
	}
	raises := c.raises
	c.raises = nil
	raiseErrs := make([]error, len(raises))
	for i, pr := range raises {
		raiseErrs[i] = c.raiseLocked(pr.candidate, &out)
	}
	state := c.state
	size := c.store.Len()
	c.mu.Unlock()

	c.logger.Debug().
		Int("fetched", len(entries)).
		Int("size", size).
		Str("state", state.String()).
		Msg("page applied")

	out = append(out, events.StateChanged(state, models.StateLoading))
	c.publish(out)
	c.done(onDone, nil)
	for i, pr := range raises {
		c.done(pr.onDone, raiseErrs[i])
	}
}

// raise moves or inserts candidate at the head of its pinned group. While
// a page is loading and nothing of that group is loaded yet, the raise
// waits for the page.
func (c *Controller) raise(candidate models.Entry, onDone func(error)) {
	c.mu.Lock()
	if c.state == models.StateUnsubscribed {
		c.mu.Unlock()
		return
	}
	if current, ok := c.store.Get(candidate.ID); ok {
		candidate = current
	}
	if c.inFlight && !c.endReached {
		if _, ok := c.store.Head(candidate.Position.Pinned); !ok {
			c.raises = append(c.raises, pendingRaise{candidate: candidate, onDone: onDone})
			c.mu.Unlock()
			c.logger.Debug().Int64("chat_id", int64(candidate.ID)).Msg("raise waits for page")
			return
		}
	}

	var out []events.Event
	err := c.raiseLocked(candidate, &out)
	c.mu.Unlock()

	c.publish(out)
	c.done(onDone, err)
}

func (c *Controller) raiseLocked(candidate models.Entry, out *[]events.Event) error {
	if current, ok := c.store.Get(candidate.ID); ok {
		candidate = current
	}
	pos := candidate.Position
	if !pos.IsMember() {
		pos.Order = 1
	}
	if head, ok := c.store.Head(pos.Pinned); ok {
		if head.ID == candidate.ID {
			return nil
		}
		if head.Position.Order == math.MaxUint64 {
			return fmt.Errorf("bring chat %d to top: %w", candidate.ID, ErrOrderExhausted)
		}
		if head.Position.Order >= pos.Order {
			pos.Order = head.Position.Order + 1
		}
	}

	meta := candidate.Metadata
	t := target{id: candidate.ID, pos: &pos, meta: &meta}
	result, err := c.tryApplyLocked(t, out)
	c.countLocked(t, result, err)
	switch result {
	case outcomeIgnored:
		return fmt.Errorf("bring chat %d to top at %s: %w", candidate.ID, pos, ErrOutsideWindow)
	case outcomeViolation:
		return fmt.Errorf("bring chat %d to top: %w", candidate.ID, err)
	}
	if c.inFlight && c.live != nil {
		c.live.add(t)
	}
	return nil
}

func (c *Controller) publish(evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	c.dispatcher.Publish(evts...)
}

// done delivers onDone after everything published so far.
func (c *Controller) done(onDone func(error), err error) {
	if onDone == nil {
		return
	}
	c.dispatcher.Post(func() { onDone(err) })
}
