package queue

import (
	"context"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// MemoryQueue is an in-process buffered-channel DispatchQueue for tests.
// Ack/Nack are no-ops beyond re-enqueueing on Nack since there is no
// separate process to crash mid-delivery.
type MemoryQueue struct {
	ch chan model.DispatchMessage
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemoryQueue{ch: make(chan model.DispatchMessage, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg model.DispatchMessage) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context) (*Delivery, error) {
	select {
	case msg := <-q.ch:
		return &Delivery{
			Message: msg,
			Ack:     func(context.Context) error { return nil },
			Nack: func(ctx context.Context) error {
				return q.Enqueue(ctx, msg)
			},
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	close(q.ch)
	return nil
}
