package capture

import "time"

// Stage is the coarse lifecycle phase of a capture task.
type Stage string

// Stage values persisted in the task store.
const (
	StageNone       Stage = "NONE"
	StageInitialize Stage = "INITIALIZE"
	StageCapture    Stage = "CAPTURE"
	StageStopped    Stage = "STOPPED"
)

// RuntimeState is the live execution state of a registered task runtime.
type RuntimeState string

// Runtime state values reported by a pipeline handle.
const (
	RuntimeRunning RuntimeState = "running"
	RuntimeStopped RuntimeState = "stopped"
)

// Task is the durable record for one capture task, scoped to a single term.
type Task struct {
	ID          string    `json:"id"`
	TermCode    string    `json:"term_code"`
	TermName    string    `json:"term_name"`
	Stage       Stage     `json:"stage"`
	StageReport string    `json:"stage_report"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskDetails composes a durable task with its live runtime, if any. It is
// built on read and never persisted; Runtime is nil when the task has no
// registered runtime.
type TaskDetails struct {
	Task
	Runtime Runtime `json:"-"`
}

// RuntimeSnapshot is the serializable view of a task's live runtime.
type RuntimeSnapshot struct {
	State     RuntimeState `json:"state"`
	Queued    int          `json:"queued"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Settings is the credential and tuning bundle an operator supplies when
// starting a task. It feeds the transport profile and the login protocol.
type Settings struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Threads  int    `json:"threads"`
	Encoding string `json:"encoding"`
}

// WorkItem is one enumerated unit of capture work, e.g. a course code.
type WorkItem struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Course is the parsed artifact persisted per work item.
type Course struct {
	Code    string       `json:"code"`
	Name    string       `json:"name"`
	Term    string       `json:"term"`
	Classes []CourseUnit `json:"classes"`
}

// CourseUnit is one teaching unit row inside a course details page.
type CourseUnit struct {
	Name      string `json:"name"`
	Teacher   string `json:"teacher"`
	TimePoint string `json:"time_point"`
	Position  string `json:"position"`
}

// PageRequest selects one page of task listings.
type PageRequest struct {
	Page int
	Size int
}

// TaskPage is one page of task details plus the total row count.
type TaskPage struct {
	Items []TaskDetails `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}
