package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

const executionLogColumns = `id, schedule_id, task_name, started_at, finished_at,
	status, result, error_message`

// ExecutionLogStore is the Postgres-backed store.ExecutionLogStore.
// Terminal writes (Complete/Fail) are idempotent first-writer-wins: a
// second terminal write against an already-terminal row is a no-op,
// mirroring the single-writer state update under cs.mu in the teacher's
// job-execution path.
type ExecutionLogStore struct {
	db *sqlx.DB
}

func NewExecutionLogStore(db *sql.DB) *ExecutionLogStore {
	return &ExecutionLogStore{db: sqlx.NewDb(db, "pgx")}
}

func (s *ExecutionLogStore) Begin(ctx context.Context, scheduleID *uuid.UUID, taskName string) (*model.ExecutionLog, error) {
	id := store.GenNewID()
	now := nowUTC()
	q := `INSERT INTO execution_logs (` + executionLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, q,
		id, nilUUID(scheduleID), taskName, now, nilTime(nil), model.StatusRunning, nil, nilStr(""),
	)
	if err != nil {
		return nil, fmt.Errorf("pg: begin execution log: %w", err)
	}
	return s.get(ctx, id)
}

func (s *ExecutionLogStore) Complete(ctx context.Context, id uuid.UUID, result []byte) error {
	return s.finish(ctx, id, model.StatusSuccess, result, "")
}

func (s *ExecutionLogStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.finish(ctx, id, model.StatusFailed, nil, errMsg)
}

func (s *ExecutionLogStore) finish(ctx context.Context, id uuid.UUID, status model.ExecutionStatus, result []byte, errMsg string) error {
	q := `UPDATE execution_logs SET status = $1, result = $2, error_message = $3, finished_at = $4
		WHERE id = $5 AND status = $6`
	res, err := s.db.ExecContext(ctx, q, status, jsonOrNull(result), nilStr(errMsg), nowUTC(), id, model.StatusRunning)
	if err != nil {
		return fmt.Errorf("pg: finish execution log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Already terminal (first-writer-wins) or row missing; either way
		// this write contributes nothing further.
		return nil
	}
	return nil
}

func (s *ExecutionLogStore) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, model.StatusSkipped, nil, reason)
}

func (s *ExecutionLogStore) get(ctx context.Context, id uuid.UUID) (*model.ExecutionLog, error) {
	var row model.ExecutionLog
	err := s.db.GetContext(ctx, &row, `SELECT `+executionLogColumns+` FROM execution_logs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get execution log: %w", err)
	}
	return &row, nil
}

func (s *ExecutionLogStore) ListRecent(ctx context.Context, filter model.ExecutionLogFilter) ([]*model.ExecutionLog, error) {
	q := `SELECT ` + executionLogColumns + ` FROM execution_logs WHERE 1=1`
	var args []any
	i := 1
	if filter.ScheduleID != nil {
		q += fmt.Sprintf(" AND schedule_id = $%d", i)
		args = append(args, *filter.ScheduleID)
		i++
	}
	if filter.TaskName != "" {
		q += fmt.Sprintf(" AND task_name = $%d", i)
		args = append(args, filter.TaskName)
		i++
	}
	if filter.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", i)
		args = append(args, filter.Status)
		i++
	}
	q += " ORDER BY started_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += fmt.Sprintf(" LIMIT $%d", i)
	args = append(args, limit)

	var rows []*model.ExecutionLog
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("pg: list execution logs: %w", err)
	}
	return rows, nil
}
