package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

func TestMemoryBus_PublishReachesAllSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	ch2, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	event := model.MutationEvent{EventType: model.EventCreated, ScheduleID: uuid.New(), Timestamp: time.Now()}
	if err := b.Publish(ctx, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, ch := range []<-chan model.MutationEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.ScheduleID != event.ScheduleID {
				t.Fatalf("schedule_id = %v, want %v", got.ScheduleID, event.ScheduleID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber never received the published event")
		}
	}
}

func TestMemoryBus_SubscribeChannelClosesOnContextCancel(t *testing.T) {
	b := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected the channel to close, got a value instead")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel never closed after context cancellation")
	}
}

func TestMemoryBus_CloseClosesAllSubscribers(t *testing.T) {
	b := NewMemoryBus()
	ch, err := b.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected the channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel never closed after Close")
	}
	// A second Close must not panic on an already-closed channel.
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
