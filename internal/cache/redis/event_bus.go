package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"memecoin-prediction-market/internal/events"
)

// streamMaxLen is the approximate cap for event streams (XADD MAXLEN ~).
const streamMaxLen int64 = 10000

// EventBus implements events.Bus over Redis Pub/Sub. When a stream name is
// configured, every published payload is also appended to that stream so late
// consumers can replay recent history.
type EventBus struct {
	rdb    *redis.Client
	stream string
}

// NewEventBus creates an EventBus backed by c. An empty stream disables the
// durable copy.
func NewEventBus(c *Client, stream string) *EventBus {
	return &EventBus{rdb: c.Underlying(), stream: stream}
}

// Publish implements events.Bus.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	if b.stream == "" {
		return nil
	}
	args := &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"channel": channel,
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", b.stream, err)
	}
	return nil
}

// Subscribe implements events.Bus. The subscription is confirmed before
// returning, so messages published afterwards are not missed.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Recent returns up to count payloads from the durable stream, oldest first.
func (b *EventBus) Recent(ctx context.Context, count int64) ([][]byte, error) {
	if b.stream == "" {
		return nil, nil
	}
	msgs, err := b.rdb.XRevRangeN(ctx, b.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", b.stream, err)
	}

	out := make([][]byte, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		if p, ok := msgs[i].Values["payload"].(string); ok {
			out = append(out, []byte(p))
		}
	}
	return out, nil
}

// hasPattern reports whether channel uses glob wildcards and needs PSubscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Compile-time interface check.
var _ events.Bus = (*EventBus)(nil)
