package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/conductor/internal/engine"
	"github.com/seantiz/conductor/internal/model"
)

func TestTaskTimestampsOrdered(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	task, err := m.Submit(ctx, func() (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	v, err := task.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "ok" {
		t.Errorf("value = %v, want ok", v)
	}

	submit, start, end := task.SubmitTime(), task.StartTime(), task.EndTime()
	if submit.IsZero() || start.IsZero() || end.IsZero() {
		t.Fatalf("timestamps not all set: submit=%v start=%v end=%v", submit, start, end)
	}
	if start.Before(submit) || end.Before(start) || time.Now().UTC().Before(end) {
		t.Errorf("timestamps out of order: submit=%v start=%v end=%v", submit, start, end)
	}
	if task.SubmitTimeUTC() > task.StartTimeUTC() || task.StartTimeUTC() > task.EndTimeUTC() {
		t.Errorf("millisecond timestamps out of order")
	}
	if !task.IsDone() || task.IsError() {
		t.Errorf("IsDone=%v IsError=%v, want true/false", task.IsDone(), task.IsError())
	}
	if task.Status() != model.StatusCompleted {
		t.Errorf("status = %q, want %q", task.Status(), model.StatusCompleted)
	}
	if task.WorkerID() != 0 {
		t.Errorf("worker id = %d after end, want 0", task.WorkerID())
	}
}

func TestUnsetTimesReportMinusOne(t *testing.T) {
	task := engine.NewTask("idle", value(1))
	if task.SubmitTimeUTC() != -1 || task.StartTimeUTC() != -1 || task.EndTimeUTC() != -1 {
		t.Errorf("unset times = %d/%d/%d, want -1", task.SubmitTimeUTC(), task.StartTimeUTC(), task.EndTimeUTC())
	}
}

func TestGetReturnsCapturedFailure(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)
	boom := errors.New("boom")

	task, err := m.Submit(ctx, func() error { return boom })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := task.BlockUntilEnded(ctx); err != nil {
		t.Fatalf("BlockUntilEnded returned %v, want nil for a failed task", err)
	}
	if _, err := task.Get(ctx); !errors.Is(err, boom) {
		t.Errorf("Get error = %v, want %v", err, boom)
	}
	if !task.IsError() || task.IsCancelled() {
		t.Errorf("IsError=%v IsCancelled=%v, want true/false", task.IsError(), task.IsCancelled())
	}
	if task.Status() != model.StatusFailed {
		t.Errorf("status = %q, want failed", task.Status())
	}
}

func TestGetUnsubmittedTask(t *testing.T) {
	task := engine.NewTask("never", value(1))
	if _, err := task.Get(context.Background()); !errors.Is(err, engine.ErrNotSubmitted) {
		t.Errorf("Get error = %v, want ErrNotSubmitted", err)
	}
	if task.IsError() {
		t.Error("usage failure must not be recorded on the task")
	}
}

func TestBlockUntilStarted(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)
	release := make(chan struct{})

	task, err := m.Submit(ctx, func() { <-release })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := task.BlockUntilStarted(ctx); err != nil {
		t.Fatalf("BlockUntilStarted: %v", err)
	}
	if !task.IsBegun() || task.StartTime().IsZero() {
		t.Error("start time not visible after BlockUntilStarted")
	}
	if task.IsDone() {
		t.Error("task done before release")
	}
	if task.WorkerID() == 0 {
		t.Error("running task has no worker id")
	}

	close(release)
	if err := task.BlockUntilEnded(ctx); err != nil {
		t.Fatalf("BlockUntilEnded: %v", err)
	}
	if task.EndTime().IsZero() {
		t.Error("end time not visible after BlockUntilEnded")
	}
}

func TestBlockUntilStartedHonoursContext(t *testing.T) {
	task := engine.NewTask("never", value(1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := task.BlockUntilStarted(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("BlockUntilStarted error = %v, want deadline exceeded", err)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	task, err := m.Submit(ctx, func() { panic("kaboom") }, engine.WithName("panicky"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = task.Get(ctx)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("Get error = %v, want panic captured", err)
	}
	if task.Name() != "panicky" {
		t.Errorf("name = %q, want panicky", task.Name())
	}
}

func TestCancelRunningTask(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	task, err := m.Submit(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := task.BlockUntilStarted(ctx); err != nil {
		t.Fatalf("BlockUntilStarted: %v", err)
	}

	if !task.Cancel() {
		t.Fatal("Cancel() = false for a running task")
	}
	if _, err := task.Get(ctx); !errors.Is(err, engine.ErrCancelled) {
		t.Errorf("Get error = %v, want ErrCancelled", err)
	}
	if !task.IsCancelled() || !task.IsError() {
		t.Errorf("IsCancelled=%v IsError=%v, want true/true", task.IsCancelled(), task.IsError())
	}
	if task.Status() != model.StatusCancelled {
		t.Errorf("status = %q, want cancelled", task.Status())
	}
	if task.Cancel() {
		t.Error("Cancel() = true for an ended task")
	}
}

func TestCancelBeforeStartWithdraws(t *testing.T) {
	m := newTestManager(t, engine.WithWorkers(1))
	ctx := testContext(t)
	release := make(chan struct{})

	first, err := m.Submit(ctx, func() { <-release })
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	if err := first.BlockUntilStarted(ctx); err != nil {
		t.Fatalf("BlockUntilStarted: %v", err)
	}

	ran := make(chan struct{}, 1)
	second, err := m.Submit(ctx, func() { ran <- struct{}{} })
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}
	if !second.Cancel() {
		t.Fatal("Cancel() = false for a waiting task")
	}
	if err := second.BlockUntilEnded(ctx); err != nil {
		t.Fatalf("BlockUntilEnded: %v", err)
	}
	close(release)

	if !second.StartTime().IsZero() {
		t.Error("withdrawn task has a start time")
	}
	if err := second.BlockUntilStarted(ctx); err != nil {
		t.Errorf("BlockUntilStarted on withdrawn task: %v", err)
	}
	if second.Status() != model.StatusCancelled {
		t.Errorf("status = %q, want cancelled", second.Status())
	}
	m.Wait()
	select {
	case <-ran:
		t.Error("withdrawn task body ran")
	default:
	}
}

func TestGetAsCoercion(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	task, err := m.Submit(ctx, value("42"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	n, err := engine.GetAs[int](ctx, task)
	if err != nil {
		t.Fatalf("GetAs[int]: %v", err)
	}
	if n != 42 {
		t.Errorf("GetAs[int] = %d, want 42", n)
	}

	type endpoint struct {
		Host string
		Port int
	}
	task, err = m.Submit(ctx, value(map[string]any{"host": "db", "port": "5432"}))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ep, err := engine.GetAs[endpoint](ctx, task)
	if err != nil {
		t.Fatalf("GetAs[endpoint]: %v", err)
	}
	if ep.Host != "db" || ep.Port != 5432 {
		t.Errorf("GetAs[endpoint] = %+v", ep)
	}
}

func TestGetAsTypeMismatch(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	task, err := m.Submit(ctx, value("not a number"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := engine.GetAs[int](ctx, task); !errors.Is(err, engine.ErrResultType) {
		t.Errorf("GetAs error = %v, want ErrResultType", err)
	}
}

func TestStatusStrings(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	pending := engine.NewTask("pending", value(1))
	if got := pending.StatusSummary(); got != engine.SummaryNotSubmitted {
		t.Errorf("unsubmitted summary = %q", got)
	}

	ok, _ := m.Submit(ctx, value("A"))
	bad, _ := m.Submit(ctx, failing(errors.New("no route")))
	ok.BlockUntilEnded(ctx)
	bad.BlockUntilEnded(ctx)

	if got := ok.StatusSummary(); got != engine.SummaryCompleted {
		t.Errorf("completed summary = %q", got)
	}
	if got := ok.StatusDetail(false); !strings.Contains(got, "result: A") {
		t.Errorf("completed detail = %q, want result", got)
	}
	if got := bad.StatusSummary(); got != engine.SummaryFailed {
		t.Errorf("failed summary = %q", got)
	}
	if got := bad.StatusDetail(true); !strings.Contains(got, "no route") {
		t.Errorf("failed detail = %q, want error text", got)
	}
}

func TestRecordSnapshot(t *testing.T) {
	m := newTestManager(t)
	ctx := testContext(t)

	task, err := m.Submit(ctx, value(7), engine.WithTags("web", "db"), engine.WithName("probe"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	task.BlockUntilEnded(ctx)

	rec := task.Record()
	if rec.ID != task.ID() || rec.Name != "probe" {
		t.Errorf("record identity = %q/%q", rec.ID, rec.Name)
	}
	if rec.Status != model.StatusCompleted || rec.Result != "7" {
		t.Errorf("record outcome = %q/%q", rec.Status, rec.Result)
	}
	if len(rec.Tags) != 2 || rec.Tags[0] != "web" || rec.Tags[1] != "db" {
		t.Errorf("record tags = %v", rec.Tags)
	}
	if rec.SubmittedAt == nil || rec.StartedAt == nil || rec.EndedAt == nil || rec.DurationMS == nil {
		t.Error("record missing timestamps")
	}
}
