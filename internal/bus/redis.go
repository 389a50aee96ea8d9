package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// RedisBus publishes mutation events on a Redis pub/sub channel. Wire
// format is the JSON envelope in spec §6.3.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus builds a RedisBus against an already-configured client.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, event model.MutationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan model.MutationEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}

	out := make(chan model.MutationEvent, 16)
	raw := pubsub.Channel()
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var event model.MutationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
