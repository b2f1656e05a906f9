// Package store archives ended tasks for later inspection. The archive is
// write-only from the engine's point of view: nothing is restored from it.
package store

import (
	"context"
	"errors"

	"github.com/seantiz/conductor/internal/model"
)

// ErrNotFound is returned when a task is not in the archive.
var ErrNotFound = errors.New("task not found")

// TaskStats holds aggregate statistics over archived tasks.
type TaskStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// ListFilter narrows ListTasks. Zero fields match everything.
type ListFilter struct {
	Status string
	Tag    string
	Limit  int
	Offset int
}

// Store defines the archive operations.
type Store interface {
	RecordTask(ctx context.Context, rec model.TaskRecord) error
	GetTask(ctx context.Context, id string) (*model.TaskRecord, error)
	ListTasks(ctx context.Context, f ListFilter) ([]*model.TaskRecord, int, error)
	GetStats(ctx context.Context) (*TaskStats, error)
	Close() error
}
