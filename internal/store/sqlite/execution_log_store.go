package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

const executionLogColumns = `id, schedule_id, task_name, started_at, finished_at,
	status, result, error_message`

// ExecutionLogStore is the SQLite-backed store.ExecutionLogStore, with
// the same first-writer-wins terminal-state idempotency as the Postgres
// implementation.
type ExecutionLogStore struct {
	db *sqlx.DB
}

func NewExecutionLogStore(db *sql.DB) *ExecutionLogStore {
	return &ExecutionLogStore{db: sqlx.NewDb(db, "sqlite")}
}

type executionLogRow struct {
	ID           string  `db:"id"`
	ScheduleID   *string `db:"schedule_id"`
	TaskName     string  `db:"task_name"`
	StartedAt    string  `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
	Status       string  `db:"status"`
	Result       *string `db:"result"`
	ErrorMessage *string `db:"error_message"`
}

func (r executionLogRow) toModel() (*model.ExecutionLog, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse execution log id: %w", err)
	}
	started, err := time.Parse(time.RFC3339Nano, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse started_at: %w", err)
	}
	log := &model.ExecutionLog{
		ID:           id,
		TaskName:     r.TaskName,
		StartedAt:    started,
		Status:       model.ExecutionStatus(r.Status),
		Result:       rawOrNil(r.Result),
		ErrorMessage: derefStr(r.ErrorMessage),
	}
	if r.ScheduleID != nil {
		sid, err := uuid.Parse(*r.ScheduleID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse schedule_id: %w", err)
		}
		log.ScheduleID = &sid
	}
	if r.FinishedAt != nil {
		finished, err := time.Parse(time.RFC3339Nano, *r.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse finished_at: %w", err)
		}
		log.FinishedAt = &finished
	}
	return log, nil
}

func (s *ExecutionLogStore) Begin(ctx context.Context, scheduleID *uuid.UUID, taskName string) (*model.ExecutionLog, error) {
	id := store.GenNewID()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var sid *string
	if scheduleID != nil {
		v := scheduleID.String()
		sid = &v
	}
	q := `INSERT INTO execution_logs (` + executionLogColumns + `)
		VALUES (?, ?, ?, ?, NULL, ?, NULL, NULL)`
	_, err := s.db.ExecContext(ctx, q, id.String(), sid, taskName, now, string(model.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin execution log: %w", err)
	}
	return s.get(ctx, id)
}

func (s *ExecutionLogStore) Complete(ctx context.Context, id uuid.UUID, result []byte) error {
	return s.finish(ctx, id, model.StatusSuccess, result, "")
}

func (s *ExecutionLogStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.finish(ctx, id, model.StatusFailed, nil, errMsg)
}

func (s *ExecutionLogStore) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	return s.finish(ctx, id, model.StatusSkipped, nil, reason)
}

func (s *ExecutionLogStore) finish(ctx context.Context, id uuid.UUID, status model.ExecutionStatus, result []byte, errMsg string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var resultStr *string
	if len(result) > 0 {
		v := string(result)
		resultStr = &v
	}
	q := `UPDATE execution_logs SET status = ?, result = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q, string(status), resultStr, nilIfEmpty(errMsg), now, id.String(), string(model.StatusRunning))
	if err != nil {
		return fmt.Errorf("sqlite: finish execution log: %w", err)
	}
	_, _ = res.RowsAffected()
	return nil
}

func (s *ExecutionLogStore) get(ctx context.Context, id uuid.UUID) (*model.ExecutionLog, error) {
	var row executionLogRow
	err := s.db.GetContext(ctx, &row, `SELECT `+executionLogColumns+` FROM execution_logs WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get execution log: %w", err)
	}
	return row.toModel()
}

func (s *ExecutionLogStore) ListRecent(ctx context.Context, filter model.ExecutionLogFilter) ([]*model.ExecutionLog, error) {
	q := `SELECT ` + executionLogColumns + ` FROM execution_logs WHERE 1=1`
	var args []any
	if filter.ScheduleID != nil {
		q += " AND schedule_id = ?"
		args = append(args, filter.ScheduleID.String())
	}
	if filter.TaskName != "" {
		q += " AND task_name = ?"
		args = append(args, filter.TaskName)
	}
	if filter.Status != "" {
		q += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	q += " ORDER BY started_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	var rows []executionLogRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite: list execution logs: %w", err)
	}
	out := make([]*model.ExecutionLog, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
