package engine

import "errors"

// Usage failures. These are returned to the caller immediately and are never
// recorded as a task's error.
var (
	ErrNothingQueued     = errors.New("no task queued in this context")
	ErrNoQueueingContext = errors.New("no queueing context available")
	ErrQueueClosed       = errors.New("queueing context is closed")
	ErrAlreadySubmitted  = errors.New("task already queued or submitted")
	ErrNotSubmitted      = errors.New("task has not been submitted")
	ErrNotDynamic        = errors.New("task is not a dynamic composition")
	ErrInvalidTag        = errors.New("invalid tag")
	ErrUnsupportedWork   = errors.New("unsupported work type")
	ErrResultType        = errors.New("result type mismatch")
	ErrNoManager         = errors.New("no manager available in context")
	ErrManagerClosed     = errors.New("manager is shut down")
)

// ErrCancelled is the captured outcome of a cancelled task.
var ErrCancelled = errors.New("task cancelled")
