package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

// ScheduleStore is the SQLite-backed store.ScheduleStore. It mirrors the
// Postgres implementation's behavior but stores tags/args/kwargs as JSON
// text, since SQLite has no native array or jsonb type.
type ScheduleStore struct {
	db *sqlx.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: sqlx.NewDb(db, "sqlite")}
}

type scheduleRow struct {
	ID                string  `db:"id"`
	Name              string  `db:"name"`
	TaskName          string  `db:"task_name"`
	CronExpression    string  `db:"cron_expression"`
	Enabled           bool    `db:"enabled"`
	Args              *string `db:"args"`
	Kwargs            *string `db:"kwargs"`
	Description       *string `db:"description"`
	Category          *string `db:"category"`
	Tags              *string `db:"tags"`
	ExecutionPolicy   string  `db:"execution_policy"`
	AutoGeneratedName bool    `db:"auto_generated_name"`
	CreatedAt         string  `db:"created_at"`
	UpdatedAt         string  `db:"updated_at"`
}

func (r scheduleRow) toModel() (*model.Schedule, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse schedule id: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse updated_at: %w", err)
	}
	var tags []string
	if r.Tags != nil && *r.Tags != "" {
		if err := json.Unmarshal([]byte(*r.Tags), &tags); err != nil {
			return nil, fmt.Errorf("sqlite: parse tags: %w", err)
		}
	}
	return &model.Schedule{
		ID:                id,
		Name:              r.Name,
		TaskName:          r.TaskName,
		CronExpression:    r.CronExpression,
		Enabled:           r.Enabled,
		Args:              rawOrNil(r.Args),
		Kwargs:            rawOrNil(r.Kwargs),
		Description:       derefStr(r.Description),
		Category:          derefStr(r.Category),
		Tags:              tags,
		ExecutionPolicy:   model.ExecutionPolicy(r.ExecutionPolicy),
		AutoGeneratedName: r.AutoGeneratedName,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

func rawOrNil(s *string) json.RawMessage {
	if s == nil || *s == "" {
		return nil
	}
	return json.RawMessage(*s)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const scheduleColumns = `id, name, task_name, cron_expression, enabled, args, kwargs,
	description, category, tags, execution_policy, auto_generated_name,
	created_at, updated_at`

func (s *ScheduleStore) Create(ctx context.Context, draft model.ScheduleDraft) (*model.Schedule, error) {
	policy := draft.ExecutionPolicy
	if policy == "" {
		policy = model.PolicyAllow
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("sqlite: invalid execution policy %q", policy)
	}

	name := draft.Name
	autoGenerated := false
	if name == "" {
		name = store.GenerateName(draft.TaskName, draft.Kwargs, draft.CronExpression)
		autoGenerated = true
	}

	id := store.GenNewID()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	tagsJSON, err := marshalTags(draft.Tags)
	if err != nil {
		return nil, err
	}

	q := `INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		id.String(), name, draft.TaskName, draft.CronExpression, draft.Enabled,
		rawToString(draft.Args), rawToString(draft.Kwargs),
		nilIfEmpty(draft.Description), nilIfEmpty(draft.Category), tagsJSON,
		string(policy), autoGenerated, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func rawToString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func marshalTags(tags []string) (*string, error) {
	if tags == nil {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal tags: %w", err)
	}
	s := string(b)
	return &s, nil
}

func (s *ScheduleStore) Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get schedule: %w", err)
	}
	return row.toModel()
}

func (s *ScheduleStore) GetByName(ctx context.Context, name string) (*model.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row, `SELECT `+scheduleColumns+` FROM schedules WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get schedule by name: %w", err)
	}
	return row.toModel()
}

func (s *ScheduleStore) List(ctx context.Context, filter model.ScheduleFilter) ([]*model.Schedule, error) {
	q := `SELECT ` + scheduleColumns + ` FROM schedules WHERE 1=1`
	var args []any

	if filter.Enabled != nil {
		q += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}
	if filter.Category != "" {
		q += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.TaskName != "" {
		q += " AND task_name = ?"
		args = append(args, filter.TaskName)
	}
	q += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			q += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	var rows []scheduleRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite: list schedules: %w", err)
	}
	out := make([]*model.Schedule, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		if len(filter.Tags) > 0 && !anyTagMatches(m.Tags, filter.Tags) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func anyTagMatches(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func (s *ScheduleStore) Update(ctx context.Context, id uuid.UUID, update model.ScheduleUpdate) (*model.Schedule, error) {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?", "auto_generated_name = ?")
		args = append(args, *update.Name, false)
	}
	if update.TaskName != nil {
		sets = append(sets, "task_name = ?")
		args = append(args, *update.TaskName)
	}
	if update.CronExpression != nil {
		sets = append(sets, "cron_expression = ?")
		args = append(args, *update.CronExpression)
	}
	if update.Args != nil {
		sets = append(sets, "args = ?")
		args = append(args, string(update.Args))
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *update.Category)
	}
	if update.Tags != nil {
		tagsJSON, err := marshalTags(update.Tags)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tagsJSON)
	}
	if update.ExecutionPolicy != nil {
		if !update.ExecutionPolicy.Valid() {
			return nil, fmt.Errorf("sqlite: invalid execution policy %q", *update.ExecutionPolicy)
		}
		sets = append(sets, "execution_policy = ?")
		args = append(args, string(*update.ExecutionPolicy))
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id.String())

	q := `UPDATE schedules SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite: update schedule: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *ScheduleStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete schedule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ScheduleStore) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*model.Schedule, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?`, enabled, now, id.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: set schedule enabled: %w", err)
	}
	return s.Get(ctx, id)
}
