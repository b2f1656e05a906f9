package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/seantiz/conductor/internal/engine"
	"github.com/seantiz/conductor/internal/model"
)

func TestRecorderArchivesEndedTasks(t *testing.T) {
	s := newTestStore(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	m := engine.NewManager(logger)
	m.OnTaskEnded(NewRecorder(s, logger))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer m.Shutdown(ctx)

	ok, err := m.Submit(ctx, func() (any, error) { return 42, nil }, engine.WithName("answer"), engine.WithTag("batch"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	bad, err := m.Submit(ctx, func() error { return errors.New("boom") })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, _ = ok.Get(ctx)
	_, _ = bad.Get(ctx)
	m.Wait()

	got, err := s.GetTask(ctx, ok.ID())
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Name != "answer" || got.Status != model.StatusCompleted || got.Result != "42" {
		t.Errorf("archived %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "batch" {
		t.Errorf("Tags = %v", got.Tags)
	}

	failed, err := s.GetTask(ctx, bad.ID())
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if failed.Status != model.StatusFailed || failed.Error != "boom" {
		t.Errorf("archived %+v", failed)
	}
}
