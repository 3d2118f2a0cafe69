package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/db"
	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
)

// ErrChatNotFound is returned when a chat does not exist or is not in the
// requested list.
var ErrChatNotFound = db.ErrChatNotFound

// LocalConfig configures a Local session.
type LocalConfig struct {
	// HistoryLimit caps the change log. Zero disables recording.
	// Default: 10000
	HistoryLimit int

	// Latency delays every page fetch.
	Latency time.Duration
}

// DefaultLocalConfig returns sensible defaults.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{HistoryLimit: 10000}
}

// Local is a Session backed by the SQLite chat store. Every mutation is
// committed, recorded in the change log and then published on the feed
// with the chat's full state.
type Local struct {
	chats   *db.ChatRepository
	changes *db.ChangeRepository
	feed    Feed
	config  LocalConfig
	logger  zerolog.Logger

	// mu orders mutations so the feed sees them in commit order.
	mu     sync.Mutex
	closed atomic.Bool
}

// NewLocal creates a session over database. A nil feed uses a MemoryFeed.
func NewLocal(database *db.DB, feed Feed, config LocalConfig) *Local {
	if feed == nil {
		feed = NewMemoryFeed(DefaultFeedBuffer)
	}
	if config.HistoryLimit < 0 {
		config.HistoryLimit = 0
	}
	return &Local{
		chats:   db.NewChatRepository(database),
		changes: db.NewChangeRepository(database),
		feed:    feed,
		config:  config,
		logger:  logging.Component("session"),
	}
}

// Subscribe implements Session. With a non-zero filter, chats whose
// metadata stops matching are reported as removed.
func (l *Local) Subscribe(list models.ListID, filter models.Filter) (<-chan models.ChangeNotification, func()) {
	out := make(chan models.ChangeNotification, DefaultFeedBuffer)
	if l.closed.Load() {
		close(out)
		return out, func() {}
	}

	in, stop, err := l.feed.Subscribe(context.Background(), list)
	if err != nil {
		l.logger.Error().Err(err).Str("list", string(list)).Msg("subscribe failed")
		close(out)
		return out, func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			stop()
		})
	}

	go func() {
		defer close(out)
		for n := range in {
			select {
			case out <- applyFilter(n, filter):
			case <-done:
				return
			}
		}
	}()
	return out, cancel
}

func applyFilter(n models.ChangeNotification, filter models.Filter) models.ChangeNotification {
	if filter.IsZero() || n.Removes() || n.Metadata == nil || filter.Matches(*n.Metadata) {
		return n
	}
	return models.ChangeNotification{List: n.List, Kind: models.NotifyRemoved, ChatID: n.ChatID}
}

// FetchPage implements Session.
func (l *Local) FetchPage(ctx context.Context, req PageRequest) ([]models.Entry, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if l.config.Latency > 0 {
		timer := time.NewTimer(l.config.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return l.chats.ListPage(ctx, req.List, req.Filter, req.After, req.EffectiveLimit())
}

// Entry returns a chat as positioned in list.
func (l *Local) Entry(ctx context.Context, list models.ListID, id models.ChatID) (models.Entry, error) {
	return l.chats.Entry(ctx, list, id)
}

// Count returns the number of chats in list matching filter.
func (l *Local) Count(ctx context.Context, list models.ListID, filter models.Filter) (int, error) {
	return l.chats.Count(ctx, list, filter)
}

// Lists returns every non-empty list.
func (l *Local) Lists(ctx context.Context) ([]models.ListID, error) {
	return l.chats.Lists(ctx)
}

// History returns recorded changes.
func (l *Local) History(ctx context.Context, q db.ChangeQuery) (*db.ChangePage, error) {
	return l.changes.Query(ctx, q)
}

// PutChat creates or updates a chat and notifies every list holding it.
func (l *Local) PutChat(ctx context.Context, id models.ChatID, snap models.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return ErrClosed
	}

	if err := l.chats.PutChat(ctx, id, snap); err != nil {
		return err
	}
	return l.notifyMemberships(ctx, id, snap)
}

// UpdateChat applies fn to the stored snapshot of a chat.
func (l *Local) UpdateChat(ctx context.Context, id models.ChatID, fn func(*models.Snapshot)) (models.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return models.Snapshot{}, ErrClosed
	}

	snap, err := l.chats.GetChat(ctx, id)
	if err != nil {
		return models.Snapshot{}, err
	}
	fn(&snap)
	if err := l.chats.PutChat(ctx, id, snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, l.notifyMemberships(ctx, id, snap)
}

func (l *Local) notifyMemberships(ctx context.Context, id models.ChatID, snap models.Snapshot) error {
	lists, err := l.chats.Memberships(ctx, id)
	if err != nil {
		return err
	}
	for list, pos := range lists {
		entry := models.Entry{ID: id, Position: pos, Metadata: snap}
		if err := l.emit(ctx, models.EntryNotification(list, models.NotifyMetadataChanged, entry)); err != nil {
			return err
		}
	}
	return nil
}

// SetPosition places a chat in list. A non-member position removes it.
func (l *Local) SetPosition(ctx context.Context, list models.ListID, id models.ChatID, pos models.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return ErrClosed
	}
	return l.setPositionLocked(ctx, list, id, pos)
}

func (l *Local) setPositionLocked(ctx context.Context, list models.ListID, id models.ChatID, pos models.Position) error {
	prev, err := l.chats.SetPosition(ctx, list, id, pos)
	if err != nil {
		return err
	}

	if !pos.IsMember() {
		if prev == nil {
			return nil
		}
		return l.emit(ctx, models.ChangeNotification{List: list, Kind: models.NotifyRemoved, ChatID: id})
	}

	snap, err := l.chats.GetChat(ctx, id)
	if err != nil {
		return err
	}
	kind := models.NotifyMoved
	if prev == nil {
		kind = models.NotifyAdded
	}
	return l.emit(ctx, models.EntryNotification(list, kind, models.Entry{ID: id, Position: pos, Metadata: snap}))
}

// RemoveFromList takes a chat out of list.
func (l *Local) RemoveFromList(ctx context.Context, list models.ListID, id models.ChatID) error {
	return l.SetPosition(ctx, list, id, models.Position{})
}

// Touch moves a chat to the top of its part of list, the way new activity
// does. The chat keeps its pinned flag and tie-break.
func (l *Local) Touch(ctx context.Context, list models.ListID, id models.ChatID) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Load() {
		return models.Position{}, ErrClosed
	}

	current, err := l.chats.Position(ctx, list, id)
	if err != nil {
		return models.Position{}, err
	}
	if current == nil {
		return models.Position{}, fmt.Errorf("touch chat %d in %s: %w", id, list, ErrChatNotFound)
	}
	top, err := l.chats.MaxOrder(ctx, list, current.Pinned)
	if err != nil {
		return models.Position{}, err
	}
	if top == current.Order {
		return *current, nil
	}

	pos := models.Position{Pinned: current.Pinned, Order: top + 1, TieBreak: current.TieBreak}
	return pos, l.setPositionLocked(ctx, list, id, pos)
}

func (l *Local) emit(ctx context.Context, n models.ChangeNotification) error {
	if l.config.HistoryLimit > 0 {
		if _, err := l.changes.Append(ctx, n); err != nil {
			return err
		}
		if _, err := l.changes.DeleteExcess(ctx, l.config.HistoryLimit, 0); err != nil {
			l.logger.Warn().Err(err).Msg("failed to trim change log")
		}
	}

	if err := l.feed.Publish(ctx, n); err != nil {
		return fmt.Errorf("publish %s for chat %d: %w", n.Kind, n.ChatID, err)
	}
	l.logger.Debug().
		Str("list", string(n.List)).
		Str("kind", string(n.Kind)).
		Int64("chat_id", int64(n.ChatID)).
		Msg("change published")
	return nil
}

// Close stops the session and its feed. Open subscriptions are closed.
func (l *Local) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.feed.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	return nil
}

var _ Session = (*Local)(nil)
