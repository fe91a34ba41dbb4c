// Package registry tracks live task runtimes and the process-wide monitor
// counters. Both are the only state shared across concurrent task executions.
package registry

import (
	"sync"

	"github.com/kingotools/capture/internal/capture"
)

// TaskRegistry is a concurrent map from task id to its runtime handle.
// Entries survive natural completion and are removed only on task deletion,
// so "was it running" stays answerable after a task finishes.
type TaskRegistry struct {
	mu       sync.RWMutex
	runtimes map[string]capture.Runtime
}

// New constructs an empty TaskRegistry. One instance lives for the whole
// process and is injected wherever runtime lookups are needed.
func New() *TaskRegistry {
	return &TaskRegistry{
		runtimes: make(map[string]capture.Runtime),
	}
}

// Register records a runtime for a task id. At most one runtime may exist
// per id; a second registration fails.
func (r *TaskRegistry) Register(taskID string, rt capture.Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runtimes[taskID]; exists {
		return capture.ErrTaskRuntimeExists
	}
	r.runtimes[taskID] = rt
	return nil
}

// Lookup returns the runtime registered for a task id, if any.
func (r *TaskRegistry) Lookup(taskID string) (capture.Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[taskID]
	return rt, ok
}

// Remove drops a task's runtime entry.
func (r *TaskRegistry) Remove(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runtimes, taskID)
}

// RunningCount counts registered runtimes currently in the Running state.
func (r *TaskRegistry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, rt := range r.runtimes {
		if rt.State() == capture.RuntimeRunning {
			count++
		}
	}
	return count
}
