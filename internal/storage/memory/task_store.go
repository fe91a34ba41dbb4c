// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kingotools/capture/internal/capture"
)

// TaskStore keeps task records in a mutex-guarded map.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]capture.Task
}

// NewTaskStore constructs an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]capture.Task),
	}
}

// Save inserts or replaces a task record.
func (s *TaskStore) Save(_ context.Context, task capture.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// FindByID fetches a task by id.
func (s *TaskStore) FindByID(_ context.Context, id string) (capture.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return capture.Task{}, capture.ErrTaskNotExists
	}
	return task, nil
}

// FindAll returns one page of tasks ordered by creation time, newest first,
// plus the total row count.
func (s *TaskStore) FindAll(_ context.Context, page capture.PageRequest) ([]capture.Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]capture.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if page.Size <= 0 {
		return all, total, nil
	}
	pageNum := page.Page
	if pageNum < 1 {
		pageNum = 1
	}
	start := (pageNum - 1) * page.Size
	if start >= total {
		return []capture.Task{}, total, nil
	}
	end := start + page.Size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// DeleteByID removes a task record. Deleting an absent id is a no-op.
func (s *TaskStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}
