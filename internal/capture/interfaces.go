package capture

import (
	"context"
	"time"
)

// TaskStore persists durable task records. It is the single source of truth
// for stage and stage report.
type TaskStore interface {
	Save(ctx context.Context, task Task) error
	FindByID(ctx context.Context, id string) (Task, error)
	FindAll(ctx context.Context, page PageRequest) ([]Task, int, error)
	DeleteByID(ctx context.Context, id string) error
}

// ArtifactContext is the per-task artifact directory: one file per work item.
type ArtifactContext interface {
	Exists() bool
	MkdirAll() error
	Put(ctx context.Context, name string, data []byte) error
}

// ArtifactStore hands out one artifact context per task.
type ArtifactStore interface {
	ContextOf(taskID string) (ArtifactContext, error)
}

// Runtime is the control surface of a live (or finished) task execution.
// Stop is cooperative: workers finish in-flight items and stop pulling.
type Runtime interface {
	State() RuntimeState
	Start() error
	Stop()
	Snapshot() RuntimeSnapshot
}

// Registry tracks the runtime of every started task by task id. Entries stay
// queryable after natural completion and are removed only on task deletion.
type Registry interface {
	Register(taskID string, rt Runtime) error
	Lookup(taskID string) (Runtime, bool)
	Remove(taskID string)
}

// TermSource resolves the term code → term name reference map.
type TermSource interface {
	Terms(ctx context.Context) (map[string]string, error)
	Reload(ctx context.Context) (map[string]string, error)
}

// Publisher pushes task completion events to a broker, if configured.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
