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

const scheduleColumns = `id, name, task_name, cron_expression, enabled, args, kwargs,
	description, category, tags, execution_policy, auto_generated_name,
	created_at, updated_at`

// ScheduleStore is the Postgres-backed store.ScheduleStore, modeled on the
// column-list-constant plus sqlx.StructScan convention used throughout the
// teacher's store/pg package.
type ScheduleStore struct {
	db *sqlx.DB
}

// NewScheduleStore wraps an already-open *sql.DB.
func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: sqlx.NewDb(db, "pgx")}
}

type scheduleRow struct {
	model.Schedule
	Tags []byte `db:"tags"`
}

func (r *scheduleRow) toModel() *model.Schedule {
	s := r.Schedule
	scanStringArray(r.Tags, &s.Tags)
	return &s
}

func (s *ScheduleStore) Create(ctx context.Context, draft model.ScheduleDraft) (*model.Schedule, error) {
	policy := draft.ExecutionPolicy
	if policy == "" {
		policy = model.PolicyAllow
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("pg: invalid execution policy %q", policy)
	}

	name := draft.Name
	autoGenerated := false
	if name == "" {
		name = store.GenerateName(draft.TaskName, draft.Kwargs, draft.CronExpression)
		autoGenerated = true
	}

	id := store.GenNewID()
	now := nowUTC()

	q := `INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.ExecContext(ctx, q,
		id, name, draft.TaskName, draft.CronExpression, draft.Enabled,
		jsonOrNull(jsonOrEmpty(draft.Args)), jsonOrNull(jsonOrEmpty(draft.Kwargs)),
		nilStr(draft.Description), nilStr(draft.Category), pqStringArray(draft.Tags),
		policy, autoGenerated, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("pg: create schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *ScheduleStore) Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get schedule: %w", err)
	}
	return row.toModel(), nil
}

func (s *ScheduleStore) GetByName(ctx context.Context, name string) (*model.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row, `SELECT `+scheduleColumns+` FROM schedules WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get schedule by name: %w", err)
	}
	return row.toModel(), nil
}

func (s *ScheduleStore) List(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE 1=1`
	var args []any
	i := 1

	if filter.Enabled != nil {
		q += fmt.Sprintf(" AND enabled = $%d", i)
		args = append(args, *filter.Enabled)
		i++
	}
	if filter.Category != "" {
		q += fmt.Sprintf(" AND category = $%d", i)
		args = append(args, filter.Category)
		i++
	}
	if filter.TaskName != "" {
		q += fmt.Sprintf(" AND task_name = $%d", i)
		args = append(args, filter.TaskName)
		i++
	}
	if len(filter.Tags) > 0 {
		q += fmt.Sprintf(" AND tags && $%d", i)
		args = append(args, pqStringArray(filter.Tags))
		i++
	}
	q += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", i)
		args = append(args, filter.Limit)
		i++
	}
	if filter.Offset > 0 {
		q += fmt.Sprintf(" OFFSET $%d", i)
		args = append(args, filter.Offset)
		i++
	}

	var rows []scheduleRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("pg: list schedules: %w", err)
	}
	out := make([]*model.Schedule, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

func (s *ScheduleStore) Update(ctx context.Context, id uuid.UUID, update model.ScheduleUpdate) (*model.Schedule, error) {
	updates := map[string]any{}
	if update.Name != nil {
		updates["name"] = *update.Name
		updates["auto_generated_name"] = false
	}
	if update.TaskName != nil {
		updates["task_name"] = *update.TaskName
	}
	if update.CronExpression != nil {
		updates["cron_expression"] = *update.CronExpression
	}
	if update.Args != nil {
		updates["args"] = jsonOrNull(update.Args)
	}
	if update.Description != nil {
		updates["description"] = *update.Description
	}
	if update.Category != nil {
		updates["category"] = *update.Category
	}
	if update.Tags != nil {
		updates["tags"] = pqStringArray(update.Tags)
	}
	if update.ExecutionPolicy != nil {
		if !update.ExecutionPolicy.Valid() {
			return nil, fmt.Errorf("pg: invalid execution policy %q", *update.ExecutionPolicy)
		}
		updates["execution_policy"] = *update.ExecutionPolicy
	}
	if len(updates) == 0 {
		return s.Get(ctx, id)
	}
	updates["updated_at"] = nowUTC()

	if err := execMapUpdate(ctx, s.db.DB, "schedules", id, updates); err != nil {
		return nil, fmt.Errorf("pg: update schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *ScheduleStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pg: delete schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ScheduleStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*model.Schedule, error) {
	err := execMapUpdate(ctx, s.db.DB, "schedules", id, map[string]any{
		"enabled":    enabled,
		"updated_at": nowUTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("pg: set schedule enabled: %w", err)
	}
	return s.Get(ctx, id)
}
