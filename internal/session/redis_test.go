package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/tOgg1/chatsync/internal/models"
	"github.com/tOgg1/chatsync/internal/session"
	"github.com/tOgg1/chatsync/internal/testutil"
)

func setupRedisFeed(t *testing.T) (*session.RedisFeed, *miniredis.Miniredis) {
	t.Helper()
	testutil.SkipIfNoNetwork(t)

	s := miniredis.RunT(t)
	feed, err := session.NewRedisFeed(context.Background(), "redis://"+s.Addr(), "")
	if err != nil {
		t.Fatalf("failed to create redis feed: %v", err)
	}
	t.Cleanup(func() { _ = feed.Close() })
	return feed, s
}

func TestRedisFeedPublishSubscribe(t *testing.T) {
	feed, _ := setupRedisFeed(t)
	ctx := context.Background()

	ch, cancel, err := feed.Subscribe(ctx, models.ListMain)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	entry := testutil.Entry(7, true, 42)
	if err := feed.Publish(ctx, models.EntryNotification(models.ListMain, models.NotifyMoved, entry)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := feed.Publish(ctx, models.ChangeNotification{List: models.ListArchive, Kind: models.NotifyRemoved, ChatID: 9}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case n := <-ch:
		if n.ChatID != 7 || n.Kind != models.NotifyMoved {
			t.Errorf("unexpected notification: %+v", n)
		}
		if n.Position == nil || *n.Position != entry.Position {
			t.Errorf("unexpected position: %+v", n.Position)
		}
		if n.Metadata == nil || n.Metadata.Title != "chat 7" {
			t.Errorf("unexpected metadata: %+v", n.Metadata)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}

	select {
	case n := <-ch:
		t.Errorf("received notification for another list: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisFeedCancelClosesChannel(t *testing.T) {
	feed, _ := setupRedisFeed(t)

	ch, cancel, err := feed.Subscribe(context.Background(), models.ListMain)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestRedisFeedDropsMalformedPayload(t *testing.T) {
	feed, s := setupRedisFeed(t)
	ctx := context.Background()

	ch, cancel, err := feed.Subscribe(ctx, models.ListMain)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	s.Publish(session.DefaultRedisPrefix+string(models.ListMain), "not json")
	if err := feed.Publish(ctx, models.ChangeNotification{List: models.ListMain, Kind: models.NotifyRemoved, ChatID: 3}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case n := <-ch:
		if n.ChatID != 3 {
			t.Errorf("expected chat 3, got %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
}

func TestNewRedisFeedBadURL(t *testing.T) {
	if _, err := session.NewRedisFeed(context.Background(), "://bad", ""); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestLocalOverRedisFeed(t *testing.T) {
	feed, _ := setupRedisFeed(t)
	database := testutil.NewDB(t)
	ctx := context.Background()

	local := session.NewLocal(database, feed, session.DefaultLocalConfig())
	defer local.Close()

	ch, cancel := local.Subscribe(models.ListMain, models.Filter{})
	defer cancel()

	if err := local.PutChat(ctx, 1, models.Snapshot{Title: "one"}); err != nil {
		t.Fatalf("PutChat failed: %v", err)
	}
	if err := local.SetPosition(ctx, models.ListMain, 1, models.Position{Order: 5, TieBreak: 1}); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}

	select {
	case n := <-ch:
		if n.Kind != models.NotifyAdded || n.Metadata.Title != "one" {
			t.Errorf("unexpected notification: %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no notification received")
	}
}
