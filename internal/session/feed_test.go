package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/models"
)

func removal(list models.ListID, id int64) models.ChangeNotification {
	return models.ChangeNotification{List: list, Kind: models.NotifyRemoved, ChatID: models.ChatID(id)}
}

func receive(t *testing.T, ch <-chan models.ChangeNotification) models.ChangeNotification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
		return models.ChangeNotification{}
	}
}

func TestMemoryFeedRoutesByList(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed(4)

	main, cancelMain, err := feed.Subscribe(ctx, models.ListMain)
	require.NoError(t, err)
	defer cancelMain()
	archive, cancelArchive, err := feed.Subscribe(ctx, models.ListArchive)
	require.NoError(t, err)
	defer cancelArchive()

	require.NoError(t, feed.Publish(ctx, removal(models.ListMain, 1)))
	require.NoError(t, feed.Publish(ctx, removal(models.ListArchive, 2)))

	require.Equal(t, models.ChatID(1), receive(t, main).ChatID)
	require.Equal(t, models.ChatID(2), receive(t, archive).ChatID)
	require.Empty(t, main)
}

func TestMemoryFeedCancelUnblocksPublisher(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed(1)

	_, cancel, err := feed.Subscribe(ctx, models.ListMain)
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, removal(models.ListMain, 1)))

	published := make(chan error, 1)
	go func() { published <- feed.Publish(ctx, removal(models.ListMain, 2)) }()

	select {
	case <-published:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-published)
	require.Zero(t, feed.Subscribers(models.ListMain))
	cancel()
}

func TestMemoryFeedPublishHonoursContext(t *testing.T) {
	feed := NewMemoryFeed(1)
	_, cancel, err := feed.Subscribe(context.Background(), models.ListMain)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.Publish(context.Background(), removal(models.ListMain, 1)))

	ctx, stop := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer stop()
	require.ErrorIs(t, feed.Publish(ctx, removal(models.ListMain, 2)), context.DeadlineExceeded)
}

func TestMemoryFeedClose(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed(0)
	ch, cancel, err := feed.Subscribe(ctx, models.ListMain)
	require.NoError(t, err)

	require.NoError(t, feed.Close())
	_, ok := <-ch
	require.False(t, ok)
	cancel()

	require.ErrorIs(t, feed.Publish(ctx, removal(models.ListMain, 1)), ErrClosed)
	_, _, err = feed.Subscribe(ctx, models.ListMain)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, feed.Close())
}
