package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/cronexpr"
	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/queue"
	"github.com/ueebee/stockura-scheduler/internal/store/memstore"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *memstore.ScheduleStore, *queue.MemoryQueue) {
	t.Helper()
	scheduleStore := memstore.NewScheduleStore()
	dispatchQueue := queue.NewMemoryQueue(16)
	cron, err := cronexpr.New("UTC")
	if err != nil {
		t.Fatalf("cronexpr.New: %v", err)
	}
	s := New(scheduleStore, dispatchQueue, nil, cron, cfg)
	return s, scheduleStore, dispatchQueue
}

// everyMinuteDraft fires on every minute boundary. Since boot seeds
// LastFireAt to the boot instant, it is not due until the first minute
// boundary after boot; tests that need it due move LastFireAt back.
func everyMinuteDraft(name string) model.ScheduleDraft {
	return model.ScheduleDraft{
		Name:            name,
		TaskName:        "noop",
		CronExpression:  "* * * * *",
		Enabled:         true,
		ExecutionPolicy: model.PolicyAllow,
	}
}

func TestScheduler_Tick_DispatchesDueEntry(t *testing.T) {
	s, scheduleStore, dispatchQueue := newTestScheduler(t, Config{
		DefaultResyncInterval: time.Hour,
		MinSyncInterval:       time.Millisecond,
		MaxTickInterval:       time.Second,
	})

	created, err := scheduleStore.Create(context.Background(), everyMinuteDraft("every-minute"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	boot := time.Now()
	if err := s.boot(context.Background(), boot); err != nil {
		t.Fatalf("boot: %v", err)
	}

	// A schedule's last_fire_at is seeded to the boot instant, so it
	// isn't due again until the next minute boundary rolls over; force
	// it into the past so the first tick observes it as due.
	s.mu.Lock()
	s.entries[created.ID].LastFireAt = boot.Add(-2 * time.Minute)
	s.mu.Unlock()

	s.tick(context.Background())

	delivery, err := consumeNonBlocking(dispatchQueue)
	if err != nil {
		t.Fatalf("expected a dispatched message, got error: %v", err)
	}
	if delivery.Message.TaskName != "noop" {
		t.Fatalf("task_name = %q, want %q", delivery.Message.TaskName, "noop")
	}
	if delivery.Message.ScheduleID != created.ID {
		t.Fatalf("schedule_id = %v, want %v", delivery.Message.ScheduleID, created.ID)
	}
}

func TestScheduler_Tick_DoesNotRefireWithinTheSameMinute(t *testing.T) {
	s, scheduleStore, dispatchQueue := newTestScheduler(t, Config{
		DefaultResyncInterval: time.Hour,
		MinSyncInterval:       time.Millisecond,
		MaxTickInterval:       time.Second,
	})

	if _, err := scheduleStore.Create(context.Background(), everyMinuteDraft("fires-once")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Now()
	if err := s.boot(context.Background(), now); err != nil {
		t.Fatalf("boot: %v", err)
	}

	s.tick(context.Background())
	if _, err := consumeNonBlocking(dispatchQueue); err == nil {
		t.Fatalf("expected no dispatch immediately after boot (last_fire_at == now)")
	}
}

func TestScheduler_Reconcile_PreservesLastFireOnMetadataUpdate(t *testing.T) {
	s, scheduleStore, _ := newTestScheduler(t, Config{
		DefaultResyncInterval: time.Hour,
		MinSyncInterval:       time.Millisecond,
		MaxTickInterval:       time.Second,
	})

	created, err := scheduleStore.Create(context.Background(), everyMinuteDraft("reconcile-me"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	boot := time.Now()
	if err := s.boot(context.Background(), boot); err != nil {
		t.Fatalf("boot: %v", err)
	}

	firedAt := boot.Add(30 * time.Second)
	s.mu.Lock()
	s.entries[created.ID].LastFireAt = firedAt
	s.mu.Unlock()

	newDesc := "updated description"
	if _, err := scheduleStore.Update(context.Background(), created.ID, model.ScheduleUpdate{Description: &newDesc}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snapshot, err := scheduleStore.List(context.Background(), model.ScheduleFilter{Enabled: boolPtr(true), Limit: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	s.reconcile(snapshot, time.Now())

	s.mu.Lock()
	got := s.entries[created.ID]
	s.mu.Unlock()

	if !got.LastFireAt.Equal(firedAt) {
		t.Fatalf("last_fire_at changed across a metadata-only reconcile: got %v, want %v", got.LastFireAt, firedAt)
	}
	if got.Schedule.Description != newDesc {
		t.Fatalf("description not refreshed by reconcile: got %q", got.Schedule.Description)
	}
}

func TestScheduler_Reconcile_DropsDisabledEntries(t *testing.T) {
	s, scheduleStore, _ := newTestScheduler(t, Config{
		DefaultResyncInterval: time.Hour,
		MinSyncInterval:       time.Millisecond,
		MaxTickInterval:       time.Second,
	})

	created, err := scheduleStore.Create(context.Background(), everyMinuteDraft("disable-me"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.boot(context.Background(), time.Now()); err != nil {
		t.Fatalf("boot: %v", err)
	}

	if _, err := scheduleStore.SetEnabled(context.Background(), created.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	snapshot, err := scheduleStore.List(context.Background(), model.ScheduleFilter{Enabled: boolPtr(true), Limit: 500})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	s.reconcile(snapshot, time.Now())

	s.mu.Lock()
	_, stillPresent := s.entries[created.ID]
	s.mu.Unlock()
	if stillPresent {
		t.Fatalf("disabled schedule was not dropped from the in-memory snapshot")
	}
}

func boolPtr(b bool) *bool { return &b }

func consumeNonBlocking(q *queue.MemoryQueue) (*queue.Delivery, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	return q.Consume(ctx)
}
