// Package memstore implements store.ScheduleStore and
// store.ExecutionLogStore in memory, for unit tests of the scheduler and
// worker pool that don't need a real database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

// ScheduleStore is an in-memory store.ScheduleStore.
type ScheduleStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*model.Schedule
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[uuid.UUID]*model.Schedule)}
}

func (s *ScheduleStore) Create(_ context.Context, draft model.ScheduleDraft) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	policy := draft.ExecutionPolicy
	if policy == "" {
		policy = model.PolicyAllow
	}

	name := draft.Name
	autoGenerated := false
	if name == "" {
		name = store.GenerateName(draft.TaskName, draft.Kwargs, draft.CronExpression)
		autoGenerated = true
	}

	now := time.Now().UTC()
	sched := &model.Schedule{
		ID:                store.GenNewID(),
		Name:              name,
		TaskName:          draft.TaskName,
		CronExpression:    draft.CronExpression,
		Enabled:           draft.Enabled,
		Args:              draft.Args,
		Kwargs:            draft.Kwargs,
		Description:       draft.Description,
		Category:          draft.Category,
		Tags:              append([]string(nil), draft.Tags...),
		ExecutionPolicy:   policy,
		AutoGeneratedName: autoGenerated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.schedules[sched.ID] = sched
	cp := *sched
	return &cp, nil
}

func (s *ScheduleStore) Get(_ context.Context, id uuid.UUID) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sched
	return &cp, nil
}

func (s *ScheduleStore) GetByName(_ context.Context, name string) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sched := range s.schedules {
		if sched.Name == name {
			cp := *sched
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *ScheduleStore) List(_ context.Context, filter model.ScheduleFilter) ([]*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Schedule
	for _, sched := range s.schedules {
		if filter.Enabled != nil && sched.Enabled != *filter.Enabled {
			continue
		}
		if filter.Category != "" && sched.Category != filter.Category {
			continue
		}
		if filter.TaskName != "" && sched.TaskName != filter.TaskName {
			continue
		}
		if len(filter.Tags) > 0 && !anyTagMatches(sched.Tags, filter.Tags) {
			continue
		}
		cp := *sched
		out = append(out, &cp)
	}
	if filter.Limit > 0 && len(out) > filter.Limit+filter.Offset {
		end := filter.Limit + filter.Offset
		if end > len(out) {
			end = len(out)
		}
		out = out[filter.Offset:end]
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

func (s *ScheduleStore) Update(_ context.Context, id uuid.UUID, update model.ScheduleUpdate) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if update.Name != nil {
		sched.Name = *update.Name
		sched.AutoGeneratedName = false
	}
	if update.TaskName != nil {
		sched.TaskName = *update.TaskName
	}
	if update.CronExpression != nil {
		sched.CronExpression = *update.CronExpression
	}
	if update.Args != nil {
		sched.Args = update.Args
	}
	if update.Description != nil {
		sched.Description = *update.Description
	}
	if update.Category != nil {
		sched.Category = *update.Category
	}
	if update.Tags != nil {
		sched.Tags = append([]string(nil), update.Tags...)
	}
	if update.ExecutionPolicy != nil {
		if !update.ExecutionPolicy.Valid() {
			return nil, store.ErrNotFound
		}
		sched.ExecutionPolicy = *update.ExecutionPolicy
	}
	sched.UpdatedAt = time.Now().UTC()
	cp := *sched
	return &cp, nil
}

func (s *ScheduleStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *ScheduleStore) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) (*model.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sched.Enabled = enabled
	sched.UpdatedAt = time.Now().UTC()
	cp := *sched
	return &cp, nil
}
