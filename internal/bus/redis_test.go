package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

func newTestRedisBus(t *testing.T) *RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBus(client, "test-channel")
}

func TestRedisBus_PublishSubscribeRoundTrips(t *testing.T) {
	b := newTestRedisBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	event := model.MutationEvent{EventType: model.EventUpdated, ScheduleID: uuid.New(), Timestamp: time.Now()}
	if err := b.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.EventType != event.EventType || got.ScheduleID != event.ScheduleID {
			t.Fatalf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never received the published event")
	}
}

func TestRedisBus_SubscribeChannelClosesOnContextCancel(t *testing.T) {
	b := newTestRedisBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected the channel to close after context cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel never closed")
	}
}
