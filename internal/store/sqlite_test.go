package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/seantiz/conductor/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeTestRecord(status string, ended time.Time, tags ...string) model.TaskRecord {
	started := ended.Add(-100 * time.Millisecond)
	d := int64(100)
	return model.TaskRecord{
		ID:          model.NewID(),
		Name:        "deploy",
		Status:      status,
		Summary:     "Completed",
		Tags:        tags,
		WorkerID:    3,
		DurationMS:  &d,
		SubmittedAt: &started,
		StartedAt:   &started,
		EndedAt:     &ended,
	}
}

func TestRecordAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestRecord(model.StatusFailed, time.Now().UTC(), "web-1", "effector")
	rec.Error = "port in use"
	rec.Composition = "ended"
	rec.Inessential = true

	if err := s.RecordTask(ctx, rec); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	got, err := s.GetTask(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}

	if got.Name != rec.Name || got.Status != rec.Status || got.Error != rec.Error {
		t.Errorf("got %+v, want %+v", got, rec)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "web-1" || got.Tags[1] != "effector" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if !got.Inessential || got.Composition != "ended" || got.WorkerID != 3 {
		t.Errorf("flags = %v/%q/%d", got.Inessential, got.Composition, got.WorkerID)
	}
	if got.DurationMS == nil || *got.DurationMS != 100 {
		t.Errorf("DurationMS = %v, want 100", got.DurationMS)
	}
	if got.EndedAt == nil || got.EndedAt.Sub(*rec.EndedAt).Abs() > time.Second {
		t.Errorf("EndedAt = %v, want %v", got.EndedAt, rec.EndedAt)
	}
	if got.QueuedAt != nil {
		t.Errorf("QueuedAt = %v, want nil", got.QueuedAt)
	}
}

func TestRecordTaskReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := makeTestRecord(model.StatusCompleted, time.Now().UTC())
	if err := s.RecordTask(ctx, rec); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	rec.Result = "done"
	if err := s.RecordTask(ctx, rec); err != nil {
		t.Fatalf("RecordTask again: %v", err)
	}

	got, err := s.GetTask(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Result != "done" {
		t.Errorf("Result = %q, want done", got.Result)
	}
	if _, total, _ := s.ListTasks(ctx, ListFilter{}); total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetTask(context.Background(), "nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask error = %v, want ErrNotFound", err)
	}
}

func TestListTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var ids []string
	for i := range 5 {
		status := model.StatusCompleted
		if i%2 == 1 {
			status = model.StatusFailed
		}
		rec := makeTestRecord(status, base.Add(time.Duration(i)*time.Minute), "batch")
		if i == 4 {
			rec.Tags = []string{"other"}
		}
		if err := s.RecordTask(ctx, rec); err != nil {
			t.Fatalf("RecordTask: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	tests := []struct {
		name      string
		filter    ListFilter
		wantIDs   []string
		wantTotal int
	}{
		{"all newest first", ListFilter{}, []string{ids[4], ids[3], ids[2], ids[1], ids[0]}, 5},
		{"paged", ListFilter{Limit: 2, Offset: 1}, []string{ids[3], ids[2]}, 5},
		{"by status", ListFilter{Status: model.StatusFailed}, []string{ids[3], ids[1]}, 2},
		{"by tag", ListFilter{Tag: "other"}, []string{ids[4]}, 1},
		{"status and tag", ListFilter{Status: model.StatusCompleted, Tag: "batch"}, []string{ids[2], ids[0]}, 2},
		{"no match", ListFilter{Tag: "missing"}, []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := s.ListTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks: %v", err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.wantIDs))
			}
			for i, rec := range got {
				if rec.ID != tt.wantIDs[i] {
					t.Errorf("tasks[%d] = %s, want %s", i, rec.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, status := range []string{model.StatusCompleted, model.StatusCompleted, model.StatusFailed, model.StatusCancelled} {
		rec := makeTestRecord(status, now)
		d := int64(100 * (i + 1))
		rec.DurationMS = &d
		if status == model.StatusCancelled {
			rec.DurationMS = nil
		}
		if err := s.RecordTask(ctx, rec); err != nil {
			t.Fatalf("RecordTask: %v", err)
		}
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.CountByStatus[model.StatusCompleted] != 2 || stats.CountByStatus[model.StatusFailed] != 1 {
		t.Errorf("CountByStatus = %v", stats.CountByStatus)
	}
	if stats.AvgDurationMS != 200 {
		t.Errorf("AvgDurationMS = %f, want 200", stats.AvgDurationMS)
	}
}

func TestGetStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 0 || stats.AvgDurationMS != 0 {
		t.Errorf("stats = %+v, want empty", stats)
	}
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	rec := makeTestRecord(model.StatusCompleted, time.Now().UTC())
	if err := s1.RecordTask(context.Background(), rec); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetTask(context.Background(), rec.ID); err != nil {
		t.Errorf("record lost across reopen: %v", err)
	}
}
