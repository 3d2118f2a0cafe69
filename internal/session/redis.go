package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/models"
)

// DefaultRedisPrefix prefixes the pub/sub channel of every list.
const DefaultRedisPrefix = "chatsync:list:"

// RedisFeed is a Feed backed by Redis pub/sub, so several processes can
// share the change stream of one database.
type RedisFeed struct {
	client *redis.Client
	prefix string
	buffer int
	logger zerolog.Logger
	owned  bool
}

// NewRedisFeed connects to redisURL and verifies the connection.
func NewRedisFeed(ctx context.Context, redisURL, prefix string) (*RedisFeed, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	feed := NewRedisFeedWithClient(client, prefix)
	feed.owned = true
	return feed, nil
}

// NewRedisFeedWithClient creates a feed from an existing client. Close
// leaves the client open.
func NewRedisFeedWithClient(client *redis.Client, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisFeed{
		client: client,
		prefix: prefix,
		buffer: DefaultFeedBuffer,
		logger: logging.Component("session.redis"),
	}
}

func (f *RedisFeed) channel(list models.ListID) string {
	return f.prefix + string(list)
}

// Publish implements Feed.
func (f *RedisFeed) Publish(ctx context.Context, n models.ChangeNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(n.List), data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe implements Feed. It returns once Redis has confirmed the
// subscription.
func (f *RedisFeed) Subscribe(ctx context.Context, list models.ListID) (<-chan models.ChangeNotification, func(), error) {
	pubsub := f.client.Subscribe(ctx, f.channel(list))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", list, err)
	}

	out := make(chan models.ChangeNotification, f.buffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var n models.ChangeNotification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					f.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed notification")
					continue
				}
				select {
				case out <- n:
				case <-done:
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Ping checks the connection.
func (f *RedisFeed) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close implements Feed.
func (f *RedisFeed) Close() error {
	if !f.owned {
		return nil
	}
	return f.client.Close()
}

var _ Feed = (*RedisFeed)(nil)
