// Package bus publishes and subscribes to schedule-mutation events so the
// Scheduler/Beat process can resync reactively instead of only on its
// periodic timer. Adapted from the teacher's MessageBus chat-channel
// fan-out (internal/bus/bus.go) to a single mutation topic.
package bus

import (
	"context"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// EventBus publishes schedule mutation events and lets callers subscribe
// to the stream. See spec §6.3.
type EventBus interface {
	Publish(ctx context.Context, event model.MutationEvent) error
	Subscribe(ctx context.Context) (<-chan model.MutationEvent, error)
	Close() error
}
