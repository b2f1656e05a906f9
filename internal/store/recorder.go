package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/seantiz/conductor/internal/engine"
)

const recordTimeout = 5 * time.Second

// NewRecorder returns a task-ended listener that archives every task into s.
// Archive failures are logged and never affect the task.
func NewRecorder(s Store, logger *slog.Logger) engine.Callback {
	return func(t *engine.Task) {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := s.RecordTask(ctx, t.Record()); err != nil {
			logger.Warn("failed to archive task", "task_id", t.ID(), "error", err)
		}
	}
}
