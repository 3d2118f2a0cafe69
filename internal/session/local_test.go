package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/db"
	"github.com/tOgg1/chatsync/internal/models"
)

func newLocal(t *testing.T, config LocalConfig) *Local {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background()))
	t.Cleanup(func() { _ = database.Close() })

	local := NewLocal(database, nil, config)
	t.Cleanup(func() { _ = local.Close() })
	return local
}

func seed(t *testing.T, l *Local, id int64, order uint64, snap models.Snapshot) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.PutChat(ctx, models.ChatID(id), snap))
	require.NoError(t, l.SetPosition(ctx, models.ListMain, models.ChatID(id), models.Position{Order: order, TieBreak: id}))
}

func TestLocalFetchPage(t *testing.T) {
	l := newLocal(t, DefaultLocalConfig())
	for i := int64(1); i <= 5; i++ {
		seed(t, l, i, uint64(100-i), models.Snapshot{Title: "chat"})
	}

	page, err := l.FetchPage(context.Background(), PageRequest{List: models.ListMain, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)

	after := page[2].Position
	page, err = l.FetchPage(context.Background(), PageRequest{List: models.ListMain, After: &after, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, models.ChatID(4), page[0].ID)
}

func TestLocalPublishesFullState(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, DefaultLocalConfig())
	require.NoError(t, l.PutChat(ctx, 1, models.Snapshot{Title: "one"}))

	ch, cancel := l.Subscribe(models.ListMain, models.Filter{})
	defer cancel()

	require.NoError(t, l.SetPosition(ctx, models.ListMain, 1, models.Position{Order: 10, TieBreak: 1}))
	n := receive(t, ch)
	require.Equal(t, models.NotifyAdded, n.Kind)
	require.Equal(t, "one", n.Metadata.Title)
	require.Equal(t, uint64(10), n.Position.Order)

	_, err := l.UpdateChat(ctx, 1, func(s *models.Snapshot) { s.UnreadCount = 4 })
	require.NoError(t, err)
	n = receive(t, ch)
	require.Equal(t, models.NotifyMetadataChanged, n.Kind)
	require.Equal(t, 4, n.Metadata.UnreadCount)
	require.Equal(t, uint64(10), n.Position.Order)

	require.NoError(t, l.SetPosition(ctx, models.ListMain, 1, models.Position{Order: 30, TieBreak: 1}))
	require.Equal(t, models.NotifyMoved, receive(t, ch).Kind)

	require.NoError(t, l.RemoveFromList(ctx, models.ListMain, 1))
	n = receive(t, ch)
	require.True(t, n.Removes())

	// Removing again is silent.
	require.NoError(t, l.RemoveFromList(ctx, models.ListMain, 1))
	require.Empty(t, ch)
}

func TestLocalFilteredSubscription(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, DefaultLocalConfig())
	seed(t, l, 1, 10, models.Snapshot{Title: "one", UnreadCount: 1})

	ch, cancel := l.Subscribe(models.ListMain, models.Filter{UnreadOnly: true})
	defer cancel()

	_, err := l.UpdateChat(ctx, 1, func(s *models.Snapshot) { s.UnreadCount = 0 })
	require.NoError(t, err)
	n := receive(t, ch)
	require.Equal(t, models.NotifyRemoved, n.Kind)
	require.Nil(t, n.Position)

	_, err = l.UpdateChat(ctx, 1, func(s *models.Snapshot) { s.UnreadCount = 2 })
	require.NoError(t, err)
	n = receive(t, ch)
	require.NotNil(t, n.Position)
	require.Equal(t, 2, n.Metadata.UnreadCount)
}

func TestLocalTouch(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, DefaultLocalConfig())
	seed(t, l, 1, 30, models.Snapshot{})
	seed(t, l, 2, 20, models.Snapshot{})

	pos, err := l.Touch(ctx, models.ListMain, 2)
	require.NoError(t, err)
	require.Equal(t, models.Position{Order: 31, TieBreak: 2}, pos)

	// Already on top.
	pos, err = l.Touch(ctx, models.ListMain, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(31), pos.Order)

	_, err = l.Touch(ctx, models.ListArchive, 2)
	require.ErrorIs(t, err, ErrChatNotFound)
}

func TestLocalRecordsHistory(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t, LocalConfig{HistoryLimit: 2})
	seed(t, l, 1, 10, models.Snapshot{})
	seed(t, l, 2, 20, models.Snapshot{})
	require.NoError(t, l.RemoveFromList(ctx, models.ListMain, 1))

	page, err := l.History(ctx, db.ChangeQuery{})
	require.NoError(t, err)
	require.Len(t, page.Changes, 2)
	require.Equal(t, models.ChatID(2), page.Changes[0].Notification.ChatID)
	last := page.Changes[1].Notification
	require.Equal(t, models.NotifyRemoved, last.Kind)
	require.Equal(t, models.ChatID(1), last.ChatID)
}

func TestLocalHistoryDisabled(t *testing.T) {
	l := newLocal(t, LocalConfig{})
	seed(t, l, 1, 10, models.Snapshot{})

	page, err := l.History(context.Background(), db.ChangeQuery{})
	require.NoError(t, err)
	require.Empty(t, page.Changes)
}

func TestLocalLatencyHonoursContext(t *testing.T) {
	l := newLocal(t, LocalConfig{Latency: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.FetchPage(ctx, PageRequest{List: models.ListMain})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalClose(t *testing.T) {
	l := newLocal(t, DefaultLocalConfig())
	ch, cancel := l.Subscribe(models.ListMain, models.Filter{})
	defer cancel()

	require.NoError(t, l.Close())
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}

	_, err := l.FetchPage(context.Background(), PageRequest{List: models.ListMain})
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, l.PutChat(context.Background(), 1, models.Snapshot{}), ErrClosed)

	closed, stop := l.Subscribe(models.ListMain, models.Filter{})
	stop()
	_, ok := <-closed
	require.False(t, ok)
}
