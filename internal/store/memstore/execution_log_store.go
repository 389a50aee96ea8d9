package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ueebee/stockura-scheduler/internal/model"
	"github.com/ueebee/stockura-scheduler/internal/store"
)

// ExecutionLogStore is an in-memory store.ExecutionLogStore with the same
// first-writer-wins terminal semantics as the durable backends.
type ExecutionLogStore struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*model.ExecutionLog
}

func NewExecutionLogStore() *ExecutionLogStore {
	return &ExecutionLogStore{logs: make(map[uuid.UUID]*model.ExecutionLog)}
}

func (s *ExecutionLogStore) Begin(_ context.Context, scheduleID *uuid.UUID, taskName string) (*model.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := &model.ExecutionLog{
		ID:         store.GenNewID(),
		ScheduleID: scheduleID,
		TaskName:   taskName,
		StartedAt:  time.Now().UTC(),
		Status:     model.StatusRunning,
	}
	s.logs[log.ID] = log
	cp := *log
	return &cp, nil
}

func (s *ExecutionLogStore) Complete(_ context.Context, id uuid.UUID, result []byte) error {
	return s.finish(id, model.StatusSuccess, result, "")
}

func (s *ExecutionLogStore) Fail(_ context.Context, id uuid.UUID, errMsg string) error {
	return s.finish(id, model.StatusFailed, nil, errMsg)
}

func (s *ExecutionLogStore) MarkSkipped(_ context.Context, id uuid.UUID, reason string) error {
	return s.finish(id, model.StatusSkipped, nil, reason)
}

func (s *ExecutionLogStore) finish(id uuid.UUID, status model.ExecutionStatus, result []byte, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return store.ErrNotFound
	}
	if log.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	log.Status = status
	log.FinishedAt = &now
	log.Result = result
	log.ErrorMessage = errMsg
	return nil
}

func (s *ExecutionLogStore) ListRecent(_ context.Context, filter model.ExecutionLogFilter) ([]*model.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.ExecutionLog
	for _, log := range s.logs {
		if filter.ScheduleID != nil && (log.ScheduleID == nil || *log.ScheduleID != *filter.ScheduleID) {
			continue
		}
		if filter.TaskName != "" && log.TaskName != filter.TaskName {
			continue
		}
		if filter.Status != "" && log.Status != filter.Status {
			continue
		}
		cp := *log
		out = append(out, &cp)
	}
	limit := filter.Limit
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
