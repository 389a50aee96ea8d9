package scheduler

import "errors"

var (
	// ErrDispatchFailed is logged (not propagated) when enqueueing a due
	// entry's dispatch message fails; the entry's last_fire_at is not
	// advanced so the next tick retries.
	ErrDispatchFailed = errors.New("scheduler: dispatch enqueue failed")

	// ErrInvalidCron marks an entry excluded from firing until its
	// schedule is repaired.
	ErrInvalidCron = errors.New("scheduler: invalid cron expression")
)
