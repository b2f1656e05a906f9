package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/seantiz/conductor/internal/model"
)

func TestTaskMetrics(t *testing.T) {
	m := NewManager(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer m.Shutdown(ctx)

	submitted := testutil.ToFloat64(tasksSubmittedTotal)
	completed := testutil.ToFloat64(tasksEndedTotal.WithLabelValues(model.StatusCompleted))
	failed := testutil.ToFloat64(tasksEndedTotal.WithLabelValues(model.StatusFailed))

	for _, work := range []any{
		func() error { return nil },
		func() error { return nil },
		func() error { return errors.New("boom") },
	} {
		if _, err := m.Submit(ctx, work); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	m.Wait()

	if got := testutil.ToFloat64(tasksSubmittedTotal) - submitted; got != 3 {
		t.Errorf("submitted delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(tasksEndedTotal.WithLabelValues(model.StatusCompleted)) - completed; got != 2 {
		t.Errorf("completed delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(tasksEndedTotal.WithLabelValues(model.StatusFailed)) - failed; got != 1 {
		t.Errorf("failed delta = %v, want 1", got)
	}
}
