package capture

import "errors"

// Domain failure kinds. The error text is the stable machine-readable kind
// the operator-facing layer maps to HTTP responses, so it must not change.
var (
	ErrTaskNotExists      = errors.New("task_not_exists")
	ErrTaskRuntimeExists  = errors.New("task_thread_exists")
	ErrTaskNotInitialized = errors.New("task_have_not_initialized")
	ErrRuntimeRunning     = errors.New("spider_running")
	ErrLoginFormNotReady  = errors.New("could_not_get_login_form")
	ErrLoginRejected      = errors.New("login_to_kingo_failed")
	ErrDirectoryCreation  = errors.New("directory_creation_failed")
	ErrTermNotFound       = errors.New("term_not_found")
)
