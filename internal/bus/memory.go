package bus

import (
	"context"
	"sync"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// MemoryBus is an in-process EventBus for tests, grounded on the teacher's
// MessageBus subscriber-map broadcast shape but delivering over channels
// instead of callback handlers.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan model.MutationEvent
	nextID      int
	closed      bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subscribers: make(map[int]chan model.MutationEvent)}
}

func (b *MemoryBus) Publish(_ context.Context, event model.MutationEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber drops the event rather than blocking the
			// publisher; callers that need every event should drain
			// promptly.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan model.MutationEvent, error) {
	b.mu.Lock()
	ch := make(chan model.MutationEvent, 16)
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	return nil
}
