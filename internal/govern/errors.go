package govern

import "errors"

// Errors returned by the governance layer. None of them is process-fatal:
// callers are expected to log, mark the work item and move on; the control
// loops keep scheduling themselves regardless.
var (
	// ErrBreakerOpen is returned when a call is rejected because the
	// circuit breaker is open. Callers should rely on the recovery
	// orchestrator to re-admit the work rather than retry immediately.
	ErrBreakerOpen = errors.New("circuit breaker is open")

	// ErrCallTimeout is returned when a governed call exceeds its task
	// type's deadline. It is counted against the breaker, never treated
	// as fatal.
	ErrCallTimeout = errors.New("governed call deadline exceeded")

	// ErrConcurrencyLimit is returned when admitting a call would exceed
	// the configured per-task-type in-flight bound.
	ErrConcurrencyLimit = errors.New("per-type concurrency limit reached")

	// ErrInvalidTaskType is returned when the task type is not one of the
	// defined categories.
	ErrInvalidTaskType = errors.New("invalid task type")
)
