// Package scheduler is the Beat: it owns the authoritative in-memory
// snapshot of enabled schedules, computes due entries every tick, and
// dispatches them to the Dispatch Queue. Grounded on the teacher's
// internal/cron/service.go runLoop/checkJobs/executeJobByID shape (a
// ticker-driven due-map build under lock, executed outside the lock to
// avoid double-firing), generalized from a single in-process job file to
// the store/bus/queue triad this spec requires, and on
// internal/config/hotreload.go's debounce-timer idea for the resync
// throttle.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ueebee/stockura-scheduler/internal/bus"
	"github.com/ueebee/stockura-scheduler/internal/cronexpr"
	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/queue"
	"github.com/ueebee/stockura-scheduler/internal/retry"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

// scheduleEntry is the in-memory record for one Schedule. last_fire_at
// starts at the scheduler's boot instant (or reconciliation-addition
// instant) so a schedule never catches up on fires missed before the
// scheduler knew about it.
type scheduleEntry struct {
	Schedule   model.Schedule
	LastFireAt time.Time
}

// Config bundles the tunables from spec §6.1 relevant to the Beat.
type Config struct {
	DefaultResyncInterval time.Duration
	MinSyncInterval       time.Duration
	MaxTickInterval       time.Duration
	MutationSyncEnabled   bool
}

// Scheduler is the Beat process. One instance per deployment; running
// two against the same store/queue would double-fire (spec §9's
// documented open question — no leader election is attempted here).
type Scheduler struct {
	store    store.ScheduleStore
	queue    queue.DispatchQueue
	eventBus bus.EventBus
	cron     *cronexpr.Evaluator
	cfg      Config
	tracer   trace.Tracer

	mu           sync.Mutex
	entries      map[uuid.UUID]*scheduleEntry
	lastResyncAt time.Time
	resyncWanted bool
}

// New builds a Scheduler. eventBus may be nil when MutationSyncEnabled
// is false, in which case resync is periodic-only.
func New(scheduleStore store.ScheduleStore, dispatchQueue queue.DispatchQueue, eventBus bus.EventBus, cron *cronexpr.Evaluator, cfg Config) *Scheduler {
	return &Scheduler{
		store:    scheduleStore,
		queue:    dispatchQueue,
		eventBus: eventBus,
		cron:     cron,
		cfg:      cfg,
		tracer:   otel.Tracer("scheduler"),
		entries:  make(map[uuid.UUID]*scheduleEntry),
	}
}

// Run boots the in-memory snapshot, starts the event listener (if
// configured), and runs the tick loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	boot := time.Now()
	if err := s.boot(ctx, boot); err != nil {
		return err
	}

	if s.cfg.MutationSyncEnabled && s.eventBus != nil {
		go s.listen(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sleepFor := s.tick(ctx)

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Scheduler) boot(ctx context.Context, now time.Time) error {
	enabled := true
	snapshot, err := s.store.List(ctx, model.ScheduleFilter{Enabled: &enabled, Limit: 500})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sched := range snapshot {
		s.entries[sched.ID] = &scheduleEntry{Schedule: *sched, LastFireAt: now}
	}
	s.lastResyncAt = now
	slog.Info("scheduler boot", "schedules", len(s.entries))
	return nil
}

// listen subscribes to the mutation channel and marks resync-wanted on
// every message; reconnects with exponential backoff on disconnect,
// since periodic resync provides liveness in the meantime (spec §4.4.4).
func (s *Scheduler) listen(ctx context.Context) {
	backoffCfg := retry.Config{MaxRetries: 1000, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		ch, err := s.eventBus.Subscribe(ctx)
		if err != nil {
			delay := backoffDelay(backoffCfg, attempt)
			attempt++
			slog.Warn("scheduler: event bus subscribe failed, retrying", "error", err, "delay", delay)
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return
			}
		}
		attempt = 0

		for event := range ch {
			slog.Info("scheduler: mutation event received", "event_type", event.EventType, "schedule_id", event.ScheduleID)
			s.markResyncWanted()
		}

		if ctx.Err() != nil {
			return
		}
		slog.Warn("scheduler: event bus channel closed, reconnecting")
	}
}

func backoffDelay(cfg retry.Config, attempt int) time.Duration {
	delay := cfg.BaseDelay << uint(attempt)
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	return delay
}

func (s *Scheduler) markResyncWanted() {
	s.mu.Lock()
	s.resyncWanted = true
	s.mu.Unlock()
}

// tick runs one iteration of the Beat's main loop (spec §4.4): resync if
// due, compute due entries, dispatch them, and return how long to sleep
// until the next tick.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	ctx, span := s.tracer.Start(ctx, "tick")
	defer span.End()

	now := time.Now()

	s.mu.Lock()
	sinceResync := now.Sub(s.lastResyncAt)
	wantResync := s.resyncWanted || sinceResync >= s.cfg.DefaultResyncInterval
	throttled := sinceResync < s.cfg.MinSyncInterval
	s.mu.Unlock()

	resynced := wantResync && !throttled
	if resynced {
		s.resync(ctx, now)
	}

	type dueItem struct {
		id    uuid.UUID
		sched model.Schedule
	}
	var due []dueItem
	minNextSeconds := s.cfg.MaxTickInterval.Seconds()

	s.mu.Lock()
	for id, e := range s.entries {
		isDue, secsUntilNext, err := s.cron.IsDue(e.Schedule.CronExpression, e.LastFireAt, now)
		if err != nil {
			slog.Error("scheduler: cron parse error, excluding entry", "schedule_id", id, "error", err)
			continue
		}
		if isDue {
			due = append(due, dueItem{id: id, sched: e.Schedule})
		} else if secsUntilNext < minNextSeconds {
			minNextSeconds = secsUntilNext
		}
	}
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("due_count", len(due)),
		attribute.Bool("resynced", resynced),
	)

	for _, item := range due {
		if err := s.dispatch(ctx, item.sched); err != nil {
			slog.Error("scheduler: dispatch failed, deferring last_fire_at", "schedule_id", item.id, "task_name", item.sched.TaskName, "error", err)
			continue
		}
		s.mu.Lock()
		if e, ok := s.entries[item.id]; ok {
			e.LastFireAt = now
		}
		s.mu.Unlock()
		slog.Info("scheduler: dispatched", "schedule_id", item.id, "task_name", item.sched.TaskName)
	}

	sleep := time.Duration(minNextSeconds * float64(time.Second))
	if sleep > s.cfg.MaxTickInterval || sleep <= 0 {
		sleep = s.cfg.MaxTickInterval
	}
	return sleep
}

func (s *Scheduler) resync(ctx context.Context, now time.Time) {
	enabled := true
	snapshot, err := s.store.List(ctx, model.ScheduleFilter{Enabled: &enabled, Limit: 500})
	if err != nil {
		slog.Warn("scheduler: resync failed, keeping last good snapshot", "error", err)
		return
	}
	s.reconcile(snapshot, now)

	s.mu.Lock()
	s.lastResyncAt = now
	s.resyncWanted = false
	s.mu.Unlock()
}

// reconcile applies spec §4.4.2: additions get last_fire_at = now,
// removals (including disabled schedules, which are absent from an
// enabled=true snapshot) are dropped, and updates preserve last_fire_at
// so a metadata-only edit never causes a re-fire.
func (s *Scheduler) reconcile(snapshot []*model.Schedule, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(snapshot))
	for _, sched := range snapshot {
		seen[sched.ID] = struct{}{}
		existing, ok := s.entries[sched.ID]
		if !ok {
			s.entries[sched.ID] = &scheduleEntry{Schedule: *sched, LastFireAt: now}
			continue
		}
		if !existing.Schedule.UpdatedAt.Equal(sched.UpdatedAt) {
			lastFire := existing.LastFireAt
			existing.Schedule = *sched
			existing.LastFireAt = lastFire
		}
	}
	for id := range s.entries {
		if _, ok := seen[id]; !ok {
			delete(s.entries, id)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, sched model.Schedule) error {
	msg := model.DispatchMessage{
		TaskName:        sched.TaskName,
		ScheduleID:      sched.ID,
		ScheduleName:    sched.Name,
		Args:            sched.Args,
		Kwargs:          sched.Kwargs,
		ExecutionPolicy: sched.ExecutionPolicy,
		DispatchID:      uuid.Must(uuid.NewV7()),
	}
	return s.queue.Enqueue(ctx, msg)
}
