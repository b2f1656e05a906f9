package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seantiz/conductor/internal/model"
)

// Tag is an opaque value used to index tasks. Tags must be comparable; they
// are never part of a task's identity.
type Tag = any

// Job is the body of a task. The context carries the running task, its
// execution context and, for dynamic compositions, the queueing context.
// It is cancelled when the task is cancelled or the manager shuts down.
type Job func(ctx context.Context) (any, error)

// Adaptable is implemented by anything that can be turned into a Task, such
// as command wrappers or effector invocations.
type Adaptable interface {
	AsTask() *Task
}

// Task is one addressable, observable unit of work. Its fields are written by
// the worker that runs it; cancellation and the start/end signals are safe to
// use from any goroutine.
type Task struct {
	id          string
	name        string
	description string
	job         Job
	comp        *composition
	latch       latch

	mu              sync.Mutex
	status          string
	tags            []Tag
	manager         *Manager
	ec              *ExecutionContext
	submittedBy     *Task
	queuedAt        time.Time
	submittedAt     time.Time
	startedAt       time.Time
	endedAt         time.Time
	workerID        int64
	cancelled       bool
	ctx             context.Context
	cancel          context.CancelFunc
	onStart         Callback
	onEnd           Callback
	expiration      ExpirationPolicy
	result          any
	err             error
	blockingDetails string
	blockingTask    *Task
	extraStatus     string
	inessential     bool
	// onDrainSlot is set for a queued child that runs on the worker slot
	// held by its composition's drain.
	onDrainSlot bool
}

// NewTask builds an unsubmitted task running job.
func NewTask(name string, job Job, tags ...Tag) *Task {
	t := &Task{
		id:     model.NewID(),
		name:   name,
		job:    job,
		latch:  newLatch(),
		status: model.StatusPending,
	}
	t.addTagsLocked(tags)
	return t
}

// Describe sets the task description and returns the task.
func (t *Task) Describe(desc string) *Task {
	t.description = desc
	return t
}

// AsTask returns t, so a *Task can be used wherever an Adaptable is accepted.
func (t *Task) AsTask() *Task { return t }

func (t *Task) ID() string          { return t.id }
func (t *Task) Name() string        { return t.name }
func (t *Task) Description() string { return t.description }

func (t *Task) String() string {
	return fmt.Sprintf("%s[%s]", t.name, t.id)
}

// Tags returns the task's tags in the order they were first added.
func (t *Task) Tags() []Tag {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Tag, len(t.tags))
	copy(out, t.tags)
	return out
}

// HasTag reports whether the task carries tag.
func (t *Task) HasTag(tag Tag) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasTagLocked(tag)
}

// HasAllTags reports whether the task carries every one of tags.
func (t *Task) HasAllTags(tags ...Tag) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tag := range tags {
		if !t.hasTagLocked(tag) {
			return false
		}
	}
	return true
}

func (t *Task) hasTagLocked(tag Tag) bool {
	for _, existing := range t.tags {
		if sameTag(existing, tag) {
			return true
		}
	}
	return false
}

func (t *Task) addTagsLocked(tags []Tag) {
	for _, tag := range tags {
		if !t.hasTagLocked(tag) {
			t.tags = append(t.tags, tag)
		}
	}
}

// Status returns the lifecycle status, one of the model.Status constants.
func (t *Task) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// setStatusLocked moves the task along its state machine. Transitions the
// state machine does not allow are ignored.
func (t *Task) setStatusLocked(to string) bool {
	if !model.ValidTransition(t.status, to) {
		return false
	}
	t.status = to
	return true
}

func (t *Task) QueuedTime() time.Time { return t.timeField(&t.queuedAt) }
func (t *Task) SubmitTime() time.Time { return t.timeField(&t.submittedAt) }
func (t *Task) StartTime() time.Time  { return t.timeField(&t.startedAt) }
func (t *Task) EndTime() time.Time    { return t.timeField(&t.endedAt) }
func (t *Task) SubmitTimeUTC() int64  { return utcMillis(t.SubmitTime()) }
func (t *Task) StartTimeUTC() int64   { return utcMillis(t.StartTime()) }
func (t *Task) EndTimeUTC() int64     { return utcMillis(t.EndTime()) }

func (t *Task) timeField(f *time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *f
}

// utcMillis returns milliseconds since the epoch, or -1 for an unset time.
func utcMillis(ts time.Time) int64 {
	if ts.IsZero() {
		return -1
	}
	return ts.UnixMilli()
}

// SubmittedBy returns the task whose body submitted or queued t, or nil for
// top-level work.
func (t *Task) SubmittedBy() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.submittedBy
}

// WorkerID identifies the worker running the task. It is zero unless the
// task is running.
func (t *Task) WorkerID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workerID
}

// Manager returns the manager the task was submitted to, or nil.
func (t *Task) Manager() *Manager {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager
}

func (t *Task) IsSubmitted() bool { return !t.SubmitTime().IsZero() }
func (t *Task) IsQueued() bool    { return !t.QueuedTime().IsZero() }
func (t *Task) IsBegun() bool     { return !t.StartTime().IsZero() }
func (t *Task) IsDone() bool      { return t.latch.isEnded() }

// IsCancelled reports whether cancellation was requested before the task
// ended.
func (t *Task) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// IsError reports whether the task ended with a failure or was cancelled.
func (t *Task) IsError() bool {
	if !t.latch.isEnded() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err != nil
}

// Err returns the captured failure without blocking. It is nil until the
// task has ended.
func (t *Task) Err() error {
	if !t.latch.isEnded() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// IsInessential reports whether a failure of this task is ignored by the
// composition that queued it.
func (t *Task) IsInessential() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inessential
}

// MarkInessential excludes the task's failure from its parent composition's
// outcome.
func (t *Task) MarkInessential() *Task {
	t.mu.Lock()
	t.inessential = true
	t.mu.Unlock()
	return t
}

// BlockUntilStarted waits until the task has started, or has ended without
// starting. Only the caller's context can make it fail.
func (t *Task) BlockUntilStarted(ctx context.Context) error {
	return t.latch.waitStarted(ctx)
}

// BlockUntilEnded waits until the task has ended. It never reports the
// task's own failure.
func (t *Task) BlockUntilEnded(ctx context.Context) error {
	return t.latch.waitEnded(ctx)
}

// Get waits for the task to end and returns its value or captured failure.
// Asking for the value of a task that was never submitted or queued fails
// immediately with ErrNotSubmitted.
func (t *Task) Get(ctx context.Context) (any, error) {
	t.mu.Lock()
	unsubmitted := t.manager == nil && t.queuedAt.IsZero()
	t.mu.Unlock()
	if unsubmitted && !t.latch.isEnded() {
		return nil, fmt.Errorf("get %s: %w", t.name, ErrNotSubmitted)
	}
	if err := t.latch.waitEnded(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// GetAs waits for t and converts its value to T. Values that are not a T are
// decoded with weak typing, so "42" becomes 42 and maps become structs.
func GetAs[T any](ctx context.Context, t *Task) (T, error) {
	v, err := t.Get(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return coerce[T](v)
}

// Cancel requests cancellation. A task that has not started is withdrawn; a
// running task has its context cancelled and must observe it; a dynamic
// composition also withdraws its children that have not started. Cancel
// reports false if the task had already ended.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.latch.isEnded() {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t.comp != nil {
		t.comp.cancelPending()
	}
	return true
}

// BlockingDetails describes what the running task is waiting for, and the
// task it waits on if any.
func (t *Task) BlockingDetails() (string, *Task) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockingDetails, t.blockingTask
}

func (t *Task) setBlocking(details string, on *Task) {
	t.mu.Lock()
	t.blockingDetails = details
	t.blockingTask = on
	t.mu.Unlock()
}

// ExtraStatus returns free-form status text set by the body.
func (t *Task) ExtraStatus() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.extraStatus
}

// invoke runs the job, converting a panic into a failure.
func (t *Task) invoke(ctx context.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	if t.job == nil {
		return nil, nil
	}
	return t.job(ctx)
}

// markQueued records that t was queued into a composition.
func (t *Task) markQueued(parent *Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manager != nil || !t.queuedAt.IsZero() || t.latch.isEnded() {
		return fmt.Errorf("queue %s: %w", t.name, ErrAlreadySubmitted)
	}
	t.queuedAt = now()
	t.submittedBy = parent
	t.setStatusLocked(model.StatusQueued)
	return nil
}

func (t *Task) markStarted(workerID int64) {
	t.mu.Lock()
	t.workerID = workerID
	t.startedAt = notBefore(now(), t.submittedAt)
	t.setStatusLocked(model.StatusRunning)
	t.mu.Unlock()
	t.latch.signalStarted()
}

// complete captures the body's outcome. A task cancelled while running ends
// cancelled whatever its body returned.
func (t *Task) complete(result any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.cancelled:
		t.err = ErrCancelled
		t.setStatusLocked(model.StatusCancelled)
	case err != nil:
		t.err = err
		t.setStatusLocked(model.StatusFailed)
	default:
		t.result = result
		t.setStatusLocked(model.StatusCompleted)
	}
}

// markEnded stamps the end time and releases end waiters.
func (t *Task) markEnded() {
	t.mu.Lock()
	t.workerID = 0
	t.blockingDetails = ""
	t.blockingTask = nil
	t.endedAt = notBefore(now(), t.startedAt, t.submittedAt)
	cancel := t.cancel
	t.mu.Unlock()
	t.latch.signalEnded()
	if cancel != nil {
		cancel()
	}
}

// withdraw ends a task that never started.
func (t *Task) withdraw() bool {
	t.mu.Lock()
	if t.latch.isEnded() || !t.setStatusLocked(model.StatusCancelled) {
		t.mu.Unlock()
		return false
	}
	t.cancelled = true
	t.err = ErrCancelled
	t.mu.Unlock()
	t.markEnded()
	return true
}

// cancelUnstarted requests cancellation of a queued or submitted task whose
// body has not begun, so the worker that picks it up withdraws it instead.
func (t *Task) cancelUnstarted() {
	t.mu.Lock()
	if t.status != model.StatusQueued && t.status != model.StatusSubmitted {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// notBefore returns ts, moved forward to the latest of floors if the wall
// clock stepped backwards.
func notBefore(ts time.Time, floors ...time.Time) time.Time {
	for _, f := range floors {
		if ts.Before(f) {
			ts = f
		}
	}
	return ts
}
