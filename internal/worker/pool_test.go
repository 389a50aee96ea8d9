package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/queue"
	"github.com/ueebee/stockura-scheduler/internal/store/memstore"
	"github.com/ueebee/stockura-scheduler/internal/tasks"
)

func TestPool_AllowPolicy_RunsAndCompletes(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	logs := memstore.NewExecutionLogStore()
	registry := tasks.NewRegistry()
	registry.Register("noop", func(_ context.Context, _, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"fetched":1,"saved":1}`), nil
	})

	pool := NewPool(q, logs, registry, nil, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	scheduleID := uuid.Must(uuid.NewV7())
	if err := q.Enqueue(ctx, model.DispatchMessage{
		TaskName:        "noop",
		ScheduleID:      scheduleID,
		ScheduleName:    "noop-daily",
		ExecutionPolicy: model.PolicyAllow,
		DispatchID:      uuid.Must(uuid.NewV7()),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForLog(t, logs, scheduleID, model.StatusSuccess)
}

func TestPool_UnregisteredTask_Fails(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	logs := memstore.NewExecutionLogStore()
	registry := tasks.NewRegistry()

	pool := NewPool(q, logs, registry, nil, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	scheduleID := uuid.Must(uuid.NewV7())
	if err := q.Enqueue(ctx, model.DispatchMessage{
		TaskName:        "ghost",
		ScheduleID:      scheduleID,
		ExecutionPolicy: model.PolicyAllow,
		DispatchID:      uuid.Must(uuid.NewV7()),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForLog(t, logs, scheduleID, model.StatusFailed)
}

func TestPool_TaskError_MarksFailed(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	logs := memstore.NewExecutionLogStore()
	registry := tasks.NewRegistry()
	registry.Register("boom", func(_ context.Context, _, _ json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("external api unreachable")
	})

	pool := NewPool(q, logs, registry, nil, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pool.Run(ctx)

	scheduleID := uuid.Must(uuid.NewV7())
	if err := q.Enqueue(ctx, model.DispatchMessage{
		TaskName:        "boom",
		ScheduleID:      scheduleID,
		ExecutionPolicy: model.PolicyAllow,
		DispatchID:      uuid.Must(uuid.NewV7()),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitForLog(t, logs, scheduleID, model.StatusFailed)
}

func waitForLog(t *testing.T, logs *memstore.ExecutionLogStore, scheduleID uuid.UUID, want model.ExecutionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recent, err := logs.ListRecent(context.Background(), model.ExecutionLogFilter{ScheduleID: &scheduleID})
		if err != nil {
			t.Fatalf("list recent: %v", err)
		}
		if len(recent) == 1 && recent[0].Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("log for schedule %s did not reach status %q within deadline", scheduleID, want)
}
