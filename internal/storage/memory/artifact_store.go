package memory

import (
	"context"
	"sync"

	"github.com/kingotools/capture/internal/capture"
)

// ArtifactStore keeps artifacts in memory, one byte slice per work item.
type ArtifactStore struct {
	mu    sync.RWMutex
	files map[string]map[string][]byte
}

// NewArtifactStore constructs an empty ArtifactStore.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		files: make(map[string]map[string][]byte),
	}
}

// ContextOf returns the artifact context for a task.
func (s *ArtifactStore) ContextOf(taskID string) (capture.ArtifactContext, error) {
	return &artifactContext{store: s, taskID: taskID}, nil
}

// Files returns a copy of the artifacts persisted for a task.
func (s *ArtifactStore) Files(taskID string) map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.files[taskID]))
	for name, data := range s.files[taskID] {
		out[name] = append([]byte(nil), data...)
	}
	return out
}

type artifactContext struct {
	store  *ArtifactStore
	taskID string
}

func (c *artifactContext) Exists() bool {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	_, ok := c.store.files[c.taskID]
	return ok
}

func (c *artifactContext) MkdirAll() error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if _, ok := c.store.files[c.taskID]; !ok {
		c.store.files[c.taskID] = make(map[string][]byte)
	}
	return nil
}

func (c *artifactContext) Put(_ context.Context, name string, data []byte) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	files, ok := c.store.files[c.taskID]
	if !ok {
		files = make(map[string][]byte)
		c.store.files[c.taskID] = files
	}
	files[name] = append([]byte(nil), data...)
	return nil
}
