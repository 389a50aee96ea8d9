// Package tasks holds the process-local task registry workers dispatch
// into, grounded on the teacher's cron.JobHandler function-value callback
// but keyed by task name instead of a single global handler, per spec §9's
// "map[string]TaskFn, not reflective dispatch" design note.
package tasks

import (
	"context"
	"encoding/json"
	"sync"
)

// TaskFn is a registered task implementation. It receives the dispatch's
// args/kwargs JSON and returns a JSON result summarizing the outcome
// (e.g. {"fetched": N, "saved": M}).
type TaskFn func(ctx context.Context, args, kwargs json.RawMessage) (json.RawMessage, error)

// Registry maps task_name to its implementation.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskFn
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]TaskFn)}
}

// Register adds or replaces the implementation for name.
func (r *Registry) Register(name string, fn TaskFn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = fn
}

// Lookup returns the implementation for name, if any.
func (r *Registry) Lookup(name string) (TaskFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	return fn, ok
}
