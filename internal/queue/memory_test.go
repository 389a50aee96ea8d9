package queue

import (
	"context"
	"testing"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

func TestMemoryQueue_EnqueueConsumeAck(t *testing.T) {
	q := NewMemoryQueue(4)
	msg := model.DispatchMessage{TaskName: "noop"}

	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	delivery, err := q.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if delivery.Message.TaskName != "noop" {
		t.Fatalf("task_name = %q, want %q", delivery.Message.TaskName, "noop")
	}
	if err := delivery.Ack(context.Background()); err != nil {
		t.Fatalf("Ack: %v", err)
	}
}

func TestMemoryQueue_NackRequeues(t *testing.T) {
	q := NewMemoryQueue(4)
	if err := q.Enqueue(context.Background(), model.DispatchMessage{TaskName: "retry-me"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	delivery, err := q.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := delivery.Nack(context.Background()); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	redelivered, err := q.Consume(context.Background())
	if err != nil {
		t.Fatalf("Consume after Nack: %v", err)
	}
	if redelivered.Message.TaskName != "retry-me" {
		t.Fatalf("task_name = %q, want %q", redelivered.Message.TaskName, "retry-me")
	}
}

func TestMemoryQueue_ConsumeRespectsContextCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Consume(ctx); err == nil {
		t.Fatalf("expected Consume to return an error on an empty, cancelled queue")
	}
}
