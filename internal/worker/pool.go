// Package worker implements the Worker Pool: the consume/execute/ack loop
// described in spec §4.7, plus the supporting bounded-concurrency Lane and
// the Redis lock service enforcing execution-policy semantics from §4.7.1.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/queue"
	"github.com/ueebee/stockura-scheduler/internal/store"
	"github.com/ueebee/stockura-scheduler/internal/tasks"
)

// Config tunes the lock behavior referenced by spec §4.7.1.
type Config struct {
	Concurrency  int
	LockTTL      time.Duration
	QueueWait    time.Duration
	LockKeyspace string
}

func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		LockTTL:      10 * time.Minute,
		QueueWait:    5 * time.Minute,
		LockKeyspace: "stockura:exec-lock",
	}
}

// Pool runs one Lane of workers consuming a DispatchQueue, invoking tasks
// from a Registry, and recording outcomes in an ExecutionLogStore.
type Pool struct {
	queue    queue.DispatchQueue
	logs     store.ExecutionLogStore
	registry *tasks.Registry
	locks    *LockService
	lane     *Lane
	cfg      Config
}

func NewPool(q queue.DispatchQueue, logs store.ExecutionLogStore, registry *tasks.Registry, locks *LockService, cfg Config) *Pool {
	return &Pool{
		queue:    q,
		logs:     logs,
		registry: registry,
		locks:    locks,
		lane:     NewLane("worker-pool", cfg.Concurrency),
		cfg:      cfg,
	}
}

// Run consumes deliveries until ctx is cancelled, dispatching each to the
// Lane so at most cfg.Concurrency tasks execute at once.
func (p *Pool) Run(ctx context.Context) error {
	for {
		delivery, err := p.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("worker: consume failed", "error", err)
			continue
		}
		msg := delivery.Message
		if err := p.lane.Submit(ctx, func() { p.handle(ctx, msg, *delivery) }); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("worker: lane submit failed", "error", err)
		}
	}
}

// handle runs one dispatch through begin -> policy consult -> invoke ->
// complete/fail/skip -> ack, exactly per spec §4.7's pseudocode.
func (p *Pool) handle(ctx context.Context, msg model.DispatchMessage, delivery queue.Delivery) {
	scheduleID := msg.ScheduleID
	log, err := p.logs.Begin(ctx, &scheduleID, msg.TaskName)
	if err != nil {
		slog.Error("worker: failed to begin execution log", "task_name", msg.TaskName, "error", err)
		_ = delivery.Nack(ctx)
		return
	}

	decision, token, lockKey := p.consultPolicy(ctx, msg)
	if decision == policySkip {
		if err := p.logs.MarkSkipped(ctx, log.ID, "execution policy: lock held"); err != nil {
			slog.Error("worker: mark skipped failed", "log_id", log.ID, "error", err)
		}
		_ = delivery.Ack(ctx)
		return
	}
	if decision == policyFailed {
		if err := p.logs.Fail(ctx, log.ID, "execution policy: queue wait timed out"); err != nil {
			slog.Error("worker: mark failed failed", "log_id", log.ID, "error", err)
		}
		_ = delivery.Ack(ctx)
		return
	}
	if decision == policyLocked {
		defer func() {
			if err := p.locks.Release(ctx, lockKey, token); err != nil {
				slog.Error("worker: lock release failed", "key", lockKey, "error", err)
			}
		}()
	}

	fn, ok := p.registry.Lookup(msg.TaskName)
	if !ok {
		if err := p.logs.Fail(ctx, log.ID, fmt.Sprintf("no task registered for %q", msg.TaskName)); err != nil {
			slog.Error("worker: mark failed failed", "log_id", log.ID, "error", err)
		}
		_ = delivery.Ack(ctx)
		return
	}

	result, runErr := fn(ctx, msg.Args, msg.Kwargs)
	if runErr != nil {
		slog.Error("worker: task failed", "task_name", msg.TaskName, "schedule_id", msg.ScheduleID, "error", runErr)
		if err := p.logs.Fail(ctx, log.ID, runErr.Error()); err != nil {
			slog.Error("worker: mark failed failed", "log_id", log.ID, "error", err)
		}
		_ = delivery.Ack(ctx)
		return
	}

	if err := p.logs.Complete(ctx, log.ID, result); err != nil {
		slog.Error("worker: mark complete failed", "log_id", log.ID, "error", err)
	}
	_ = delivery.Ack(ctx)
}

type policyDecision int

const (
	policyRun policyDecision = iota
	policyLocked
	policySkip
	policyFailed
)

// consultPolicy implements spec §4.7.1: allow runs unconditionally, no
// lock. skip tries the lock once; if held, the caller skips, otherwise it
// runs holding the lock until completion. queue waits up to cfg.QueueWait
// for the lock, failing the execution on timeout, and otherwise also runs
// holding the lock until completion. The returned token/key are only
// meaningful when decision is policyLocked, for the caller's deferred
// Release once the task finishes.
func (p *Pool) consultPolicy(ctx context.Context, msg model.DispatchMessage) (decision policyDecision, token, key string) {
	if msg.ExecutionPolicy != model.PolicySkip && msg.ExecutionPolicy != model.PolicyQueue {
		return policyRun, "", ""
	}
	if p.locks == nil {
		return policyRun, "", ""
	}
	key = p.locks.Key(msg.TaskName, msg.Kwargs)

	switch msg.ExecutionPolicy {
	case model.PolicySkip:
		tok, ok, err := p.locks.TryAcquire(ctx, key, p.cfg.LockTTL)
		if err != nil {
			slog.Error("worker: lock try-acquire failed, running anyway", "key", key, "error", err)
			return policyRun, "", ""
		}
		if !ok {
			return policySkip, "", ""
		}
		return policyLocked, tok, key

	case model.PolicyQueue:
		tok, ok, err := p.locks.AwaitAcquire(ctx, key, p.cfg.LockTTL, p.cfg.QueueWait, 0)
		if err != nil {
			slog.Error("worker: lock await failed, running anyway", "key", key, "error", err)
			return policyRun, "", ""
		}
		if !ok {
			return policyFailed, "", ""
		}
		return policyLocked, tok, key

	default:
		return policyRun, "", ""
	}
}
