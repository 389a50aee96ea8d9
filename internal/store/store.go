// Package store defines the persistence interfaces the scheduler and
// workers depend on, independent of backend. internal/store/pg and
// internal/store/sqlite implement them against Postgres and SQLite;
// internal/store/memstore implements them in memory for tests.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ueebee/stockura-scheduler/internal/model"
)

// ErrNotFound is returned by Get/Update/Delete when no row matches.
var ErrNotFound = errors.New("store: not found")

// ScheduleStore persists Schedule records. See spec §3, §4.1.
type ScheduleStore interface {
	Create(ctx context.Context, draft model.ScheduleDraft) (*model.Schedule, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	GetByName(ctx context.Context, name string) (*model.Schedule, error)
	List(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, error)
	Update(ctx context.Context, id uuid.UUID, update model.ScheduleUpdate) (*model.Schedule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*model.Schedule, error)
}

// ExecutionLogStore persists ExecutionLog records. See spec §3, §4.3.
type ExecutionLogStore interface {
	Begin(ctx context.Context, scheduleID *uuid.UUID, taskName string) (*model.ExecutionLog, error)
	Complete(ctx context.Context, id uuid.UUID, result []byte) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
	ListRecent(ctx context.Context, filter model.ExecutionLogFilter) ([]*model.ExecutionLog, error)
}

// ListedInfoStore persists the canonical task's output records, upserted
// keyed on (date, code). See spec §4.8 step 6.
type ListedInfoStore interface {
	BulkUpsert(ctx context.Context, records []model.ListedInfo) (int, error)
}
