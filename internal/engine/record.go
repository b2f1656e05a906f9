package engine

import (
	"fmt"
	"time"

	"github.com/seantiz/conductor/internal/model"
)

// TagName renders a tag for display. Tags implementing fmt.Stringer use
// their String method.
func TagName(tag Tag) string {
	if s, ok := tag.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(tag)
}

// Record snapshots the task for the HTTP layer and the history archive.
func (t *Task) Record() model.TaskRecord {
	t.mu.Lock()
	rec := model.TaskRecord{
		ID:              t.id,
		Name:            t.name,
		Description:     t.description,
		Status:          t.status,
		Tags:            make([]string, 0, len(t.tags)),
		WorkerID:        t.workerID,
		BlockingDetails: t.blockingDetails,
		Inessential:     t.inessential,
		QueuedAt:        timePtr(t.queuedAt),
		SubmittedAt:     timePtr(t.submittedAt),
		StartedAt:       timePtr(t.startedAt),
		EndedAt:         timePtr(t.endedAt),
	}
	for _, tag := range t.tags {
		rec.Tags = append(rec.Tags, TagName(tag))
	}
	if t.submittedBy != nil {
		rec.SubmittedBy = t.submittedBy.id
	}
	if t.err != nil {
		rec.Error = t.err.Error()
	} else if t.result != nil {
		rec.Result = truncate(fmt.Sprint(t.result))
	}
	if !t.startedAt.IsZero() && !t.endedAt.IsZero() {
		d := t.endedAt.Sub(t.startedAt).Milliseconds()
		rec.DurationMS = &d
	}
	t.mu.Unlock()

	rec.Summary = t.StatusSummary()
	if t.comp != nil {
		rec.Composition = t.CompositionState().String()
	}
	return rec
}

func timePtr(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	return &ts
}
