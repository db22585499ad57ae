package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisFeed fans changes out over Redis pub/sub so every API instance sees them.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisFeed constructs a feed publishing on channels "<prefix>:<topic>".
func NewRedisFeed(client *redis.Client, prefix string, logger *slog.Logger) *RedisFeed {
	if prefix == "" {
		prefix = "odyssey:changes"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + ":" + topic
}

// Publish sends change to its topic channel.
func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	if f == nil || f.client == nil {
		return nil
	}
	if change.Topic == "" {
		return errors.New("changefeed: topic required")
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	if err := f.client.Publish(ctx, f.channel(change.Topic), payload).Err(); err != nil {
		return fmt.Errorf("changefeed: publish: %w", err)
	}
	return nil
}

// Subscribe delivers changes of topic to fn until ctx ends or the returned
// Unsubscribe is called.
func (f *RedisFeed) Subscribe(ctx context.Context, topic string, fn Handler) (Unsubscribe, error) {
	sub := f.client.Subscribe(ctx, f.channel(topic))
	// wait for the subscription confirmation so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("changefeed: subscribe: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Warn("changefeed: malformed message", slog.String("channel", msg.Channel), slog.Any("error", err))
					continue
				}
				fn(change)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
			wg.Wait()
		})
	}, nil
}
