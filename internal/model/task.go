package model

import "time"

// Task status constants.
const (
	StatusPending   = "pending"
	StatusQueued    = "queued"
	StatusSubmitted = "submitted"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusQueued:    true,
		StatusSubmitted: true,
		StatusCancelled: true,
	},
	StatusQueued: {
		StatusSubmitted: true,
		StatusCancelled: true,
	},
	StatusSubmitted: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is one a task never leaves.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// TaskRecord is a point-in-time snapshot of a task, used by the HTTP layer
// and the history archive.
type TaskRecord struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Status          string     `json:"status"`
	Summary         string     `json:"summary"`
	Tags            []string   `json:"tags"`
	SubmittedBy     string     `json:"submitted_by,omitempty"`
	WorkerID        int64      `json:"worker_id,omitempty"`
	Result          string     `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	BlockingDetails string     `json:"blocking_details,omitempty"`
	Composition     string     `json:"composition,omitempty"`
	Inessential     bool       `json:"inessential,omitempty"`
	DurationMS      *int64     `json:"duration_ms,omitempty"`
	QueuedAt        *time.Time `json:"queued_at,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}
