package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/seantiz/conductor/internal/engine"
)

const testTimeout = 5 * time.Second

func newTestManager(t *testing.T, opts ...engine.ManagerOption) *engine.Manager {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	m := engine.NewManager(logger, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return m
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func value(v any) engine.Job {
	return func(context.Context) (any, error) { return v, nil }
}

func failing(err error) engine.Job {
	return func(context.Context) (any, error) { return nil, err }
}

func contains(tasks []*engine.Task, want *engine.Task) bool {
	for _, t := range tasks {
		if t == want {
			return true
		}
	}
	return false
}

func ids(tasks []*engine.Task) map[string]bool {
	out := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		out[t.ID()] = true
	}
	return out
}
