// Package queue is the durable at-least-once FIFO between the Scheduler
// and the Worker Pool. Grounded on the teacher's internal/scheduler/
// queue.go session-dispatch vocabulary (enqueue, per-worker consume,
// ack-or-redeliver) generalized from in-process channels to a durable
// Redis-backed queue, with an in-memory variant for tests.
package queue

import (
	"context"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// Delivery wraps a DispatchMessage with the handle needed to Ack or Nack
// it once processing finishes.
type Delivery struct {
	Message model.DispatchMessage
	Ack     func(ctx context.Context) error
	Nack    func(ctx context.Context) error
}

// DispatchQueue is the durable queue interface the Scheduler enqueues to
// and the Worker Pool consumes from. See spec §4.2, §6.2.
type DispatchQueue interface {
	Enqueue(ctx context.Context, msg model.DispatchMessage) error
	Consume(ctx context.Context) (*Delivery, error)
	Close() error
}
