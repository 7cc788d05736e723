package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nidhogg/nuka-mind/internal/mind"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const streamPrefix = "mind:events:"

// EventBus publishes mind events to Redis Streams, one stream per mind.
type EventBus struct {
	rdb    *redis.Client
	maxLen int64
	logger *zap.Logger
}

// NewEventBus creates a Redis-backed event bus.
func NewEventBus(redisURL string, logger *zap.Logger) (*EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &EventBus{rdb: rdb, maxLen: 1000, logger: logger}, nil
}

// Stream returns the stream key holding a mind's events.
func Stream(mindID string) string {
	return streamPrefix + mindID
}

// Publish appends an event to the mind's stream. Streams are trimmed to
// roughly the last thousand entries.
func (b *EventBus) Publish(ctx context.Context, e mind.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	stream := Stream(e.MindID)
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published event",
		zap.String("mind", e.MindID),
		zap.String("type", string(e.Type)))
	return nil
}

// Subscribe listens for new events on a mind's stream. Cancel the context
// to stop; the channel is closed afterwards.
func (b *EventBus) Subscribe(ctx context.Context, mindID string) <-chan mind.Event {
	ch := make(chan mind.Event, 16)
	stream := Stream(mindID)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					b.logger.Debug("xread failed", zap.String("stream", stream), zap.Error(err))
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var e mind.Event
					if json.Unmarshal([]byte(data), &e) != nil {
						continue
					}
					select {
					case ch <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Recent returns up to n of the latest events for a mind, oldest first.
func (b *EventBus) Recent(ctx context.Context, mindID string, n int64) ([]mind.Event, error) {
	msgs, err := b.rdb.XRevRangeN(ctx, Stream(mindID), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", Stream(mindID), err)
	}
	events := make([]mind.Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var e mind.Event
		if err := json.Unmarshal([]byte(data), &e); err == nil {
			events = append(events, e)
		}
	}
	return events, nil
}

// Close shuts down the Redis connection.
func (b *EventBus) Close() error {
	return b.rdb.Close()
}

// Fanout delivers every event to each publisher in turn. All publishers are
// tried; the errors are joined.
type Fanout []mind.Publisher

func (f Fanout) Publish(ctx context.Context, e mind.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
