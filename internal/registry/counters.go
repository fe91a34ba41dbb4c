package registry

import (
	"sync/atomic"

	"github.com/kingotools/capture/internal/metrics"
)

// Counters holds the process-wide importing and capturing task counts.
// Increments and decrements are paired within a single job's lifetime: start
// increments, every exit path decrements exactly once.
type Counters struct {
	importing atomic.Int64
	capturing atomic.Int64
}

// NewCounters constructs zeroed Counters.
func NewCounters() *Counters {
	return &Counters{}
}

// IncCapturing records a capture job entering execution.
func (c *Counters) IncCapturing() {
	metrics.SetCapturingTasks(c.capturing.Add(1))
}

// DecCapturing records a capture job leaving execution.
func (c *Counters) DecCapturing() {
	metrics.SetCapturingTasks(c.capturing.Add(-1))
}

// IncImporting records an import job entering execution.
func (c *Counters) IncImporting() {
	metrics.SetImportingTasks(c.importing.Add(1))
}

// DecImporting records an import job leaving execution.
func (c *Counters) DecImporting() {
	metrics.SetImportingTasks(c.importing.Add(-1))
}

// Capturing returns the number of capture jobs currently executing.
func (c *Counters) Capturing() int64 {
	return c.capturing.Load()
}

// Importing returns the number of import jobs currently executing.
func (c *Counters) Importing() int64 {
	return c.importing.Load()
}
