package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/seantiz/conductor/internal/model"
)

// Manager dispatches tasks to workers, indexes them by tag and applies each
// task's expiration policy once it ends.
type Manager struct {
	logger     *slog.Logger
	index      tagIndex
	tasks      sync.Map // id -> *Task
	root       context.Context
	stop       context.CancelFunc
	sem        *semaphore.Weighted
	wg         sync.WaitGroup
	events     *EventBroker
	expiration ExpirationPolicy

	schedMu    sync.RWMutex
	schedulers map[Tag]Scheduler

	listenMu  sync.RWMutex
	listeners []Callback

	total      atomic.Int64
	incomplete atomic.Int64
	active     atomic.Int64
	workerSeq  atomic.Int64
}

// NewManager creates a manager. By default the number of concurrently
// running tasks is unbounded and finished tasks are retained.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	var cfg managerConfig
	for _, o := range opts {
		o(&cfg)
	}

	root, stop := context.WithCancel(context.Background())
	m := &Manager{
		logger:     logger,
		root:       root,
		stop:       stop,
		events:     NewEventBroker(),
		expiration: cfg.expiration,
		schedulers: make(map[Tag]Scheduler),
	}
	if cfg.workers > 0 {
		m.sem = semaphore.NewWeighted(cfg.workers)
	}
	return m
}

// Events returns the manager's lifecycle event broker.
func (m *Manager) Events() *EventBroker {
	return m.events
}

// Submit adapts work into a task, indexes it under its tags and dispatches it
// to a worker. Work may be a *Task or other Adaptable, a Job, or a plain
// function of one of these forms:
//
//	func()
//	func() error
//	func() (any, error)
//	func(context.Context) error
//	func(context.Context) (any, error)
//
// Submitting a task that was already submitted is a no-op that returns the
// same task; callbacks in opts are not run for it.
//
// When ctx carries a running task, that task becomes the new task's
// submitter.
func (m *Manager) Submit(ctx context.Context, work any, opts ...SubmitOption) (*Task, error) {
	if m.root.Err() != nil {
		return nil, fmt.Errorf("submit: %w", ErrManagerClosed)
	}

	var cfg submitConfig
	for _, o := range opts {
		o(&cfg)
	}
	for _, tag := range cfg.tags {
		if err := validateTag(tag); err != nil {
			return nil, fmt.Errorf("submit: %w", err)
		}
	}

	t, err := adapt(work, &cfg)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	parent := CurrentTask(ctx)

	t.mu.Lock()
	if t.manager != nil || t.latch.isEnded() {
		t.mu.Unlock()
		return t, nil
	}
	for _, tag := range t.tags {
		if err := validateTag(tag); err != nil {
			t.mu.Unlock()
			return nil, fmt.Errorf("submit %s: %w", t.name, err)
		}
	}
	t.addTagsLocked(cfg.tags)
	if t.submittedBy == nil && parent != t {
		t.submittedBy = parent
	}
	t.manager = m
	t.ec = cfg.ec
	t.expiration = m.expiration
	if cfg.expiration != nil {
		t.expiration = *cfg.expiration
	}
	t.onStart, t.onEnd = cfg.onStart, cfg.onEnd
	t.ctx, t.cancel = context.WithCancel(m.root)
	if t.cancelled {
		t.cancel()
	}
	t.submittedAt = notBefore(now(), t.queuedAt)
	t.setStatusLocked(model.StatusSubmitted)
	tags := slices.Clone(t.tags)
	submitted := t.submittedAt
	t.mu.Unlock()

	m.tasks.Store(t.id, t)
	for _, tag := range tags {
		m.index.add(tag, t)
	}
	m.total.Add(1)
	m.incomplete.Add(1)
	tasksSubmittedTotal.Inc()
	m.events.Publish(Event{TaskID: t.id, Type: EventSubmitted, Status: model.StatusSubmitted, Time: submitted})
	m.logger.Debug("task submitted", "task_id", t.id, "task", t.name)

	m.dispatch(t, tags)
	return t, nil
}

// adapt turns submitted work into a task.
func adapt(work any, cfg *submitConfig) (*Task, error) {
	var job Job
	switch w := work.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedWork)
	case Adaptable:
		t := w.AsTask()
		if t == nil {
			return nil, fmt.Errorf("%w: %T adapted to a nil task", ErrUnsupportedWork, work)
		}
		return t, nil
	case Job:
		job = w
	case func(context.Context) (any, error):
		job = w
	case func(context.Context) error:
		job = func(ctx context.Context) (any, error) { return nil, w(ctx) }
	case func() (any, error):
		job = func(context.Context) (any, error) { return w() }
	case func() error:
		job = func(context.Context) (any, error) { return nil, w() }
	case func():
		job = func(context.Context) (any, error) { w(); return nil, nil }
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedWork, work)
	}

	name := cfg.name
	if name == "" {
		name = "task"
	}
	return NewTask(name, job).Describe(cfg.description), nil
}

// dispatch hands the task to the scheduler registered for its first
// scheduled tag, or to a new worker goroutine.
func (m *Manager) dispatch(t *Task, tags []Tag) {
	if s := m.schedulerFor(tags); s != nil {
		m.wg.Add(1)
		s.Schedule(func() {
			defer m.wg.Done()
			m.run(t)
		})
		return
	}
	m.wg.Go(func() {
		m.run(t)
	})
}

// run executes the task lifecycle on the current worker:
// submitted→running→completed/failed/cancelled.
func (m *Manager) run(t *Task) {
	t.mu.Lock()
	ctx, onStart, onEnd, ec := t.ctx, t.onStart, t.onEnd, t.ec
	onDrainSlot := t.onDrainSlot
	t.mu.Unlock()

	if m.sem != nil && !onDrainSlot {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			m.withdraw(t)
			return
		}
		defer m.sem.Release(1)
	}

	if t.IsCancelled() {
		m.withdraw(t)
		return
	}

	m.active.Add(1)
	tasksActive.Inc()
	if onStart != nil {
		m.callback("start", t, onStart)
	}
	t.markStarted(m.workerSeq.Add(1))
	m.events.Publish(Event{TaskID: t.id, Type: EventStarted, Status: model.StatusRunning, Time: t.StartTime()})

	ctx = withCurrentTask(ctx, t)
	if ec != nil {
		ctx = withExecutionContextValue(ctx, ec)
	}
	result, err := t.invoke(ctx)
	t.complete(result, err)

	if onEnd != nil {
		m.callback("end", t, onEnd)
	}
	m.active.Add(-1)
	tasksActive.Dec()
	t.markEnded()
	m.finish(t)
}

// withdraw ends a submitted task that never started.
func (m *Manager) withdraw(t *Task) {
	if !t.withdraw() {
		return
	}
	if t.comp != nil {
		t.comp.abandon()
	}
	m.finish(t)
}

// finish runs after a task's end is signalled: it updates counters, notifies
// listeners and subscribers, then applies the expiration policy.
func (m *Manager) finish(t *Task) {
	m.incomplete.Add(-1)

	status := t.Status()
	tasksEndedTotal.WithLabelValues(status).Inc()
	if start := t.StartTime(); !start.IsZero() {
		taskDuration.WithLabelValues(status).Observe(t.EndTime().Sub(start).Seconds())
	}
	if err := t.Err(); err != nil && !errors.Is(err, ErrCancelled) {
		m.logger.Debug("task failed", "task_id", t.id, "task", t.name, "error", err)
	}

	m.listenMu.RLock()
	listeners := slices.Clone(m.listeners)
	m.listenMu.RUnlock()
	for _, fn := range listeners {
		m.callback("ended listener", t, fn)
	}

	m.events.Publish(Event{TaskID: t.id, Type: EventEnded, Status: status, Time: t.EndTime()})
	m.events.Close(t.id)

	if t.expiration == ExpireImmediate {
		m.Forget(t)
	}
}

func (m *Manager) callback(kind string, t *Task, fn Callback) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("task callback panicked", "task_id", t.id, "callback", kind, "panic", r)
		}
	}()
	fn(t)
}

// OnTaskEnded registers fn to run on the worker after every task ends.
func (m *Manager) OnTaskEnded(fn Callback) {
	m.listenMu.Lock()
	defer m.listenMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Forget removes an ended task from every index. It reports false if the
// task is still running or was not known to the manager.
func (m *Manager) Forget(t *Task) bool {
	if !t.IsDone() {
		return false
	}
	if _, loaded := m.tasks.LoadAndDelete(t.id); !loaded {
		return false
	}
	for _, tag := range t.Tags() {
		m.index.remove(tag, t)
	}
	m.events.Forget(t.id)
	return true
}

// GetTask returns the retained task with the given id.
func (m *Manager) GetTask(id string) (*Task, bool) {
	v, ok := m.tasks.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

// GetTasksWithTag returns the retained tasks carrying tag.
func (m *Manager) GetTasksWithTag(tag Tag) []*Task {
	return m.index.withTag(tag)
}

// GetTasksWithAnyTag returns the retained tasks carrying at least one of tags.
func (m *Manager) GetTasksWithAnyTag(tags ...Tag) []*Task {
	return m.index.withAnyTag(tags)
}

// GetTasksWithAllTags returns the retained tasks carrying every one of tags.
func (m *Manager) GetTasksWithAllTags(tags ...Tag) []*Task {
	return m.index.withAllTags(tags)
}

// GetTaskTags returns every tag that indexes at least one retained task.
func (m *Manager) GetTaskTags() []Tag {
	return m.index.tags()
}

// GetAllTasks returns every retained task ordered by submit time.
func (m *Manager) GetAllTasks() []*Task {
	out := []*Task{}
	m.tasks.Range(func(_, v any) bool {
		out = append(out, v.(*Task))
		return true
	})
	return sortTasks(out)
}

// Children returns the retained tasks submitted or queued by parent.
func (m *Manager) Children(parent *Task) []*Task {
	out := []*Task{}
	m.tasks.Range(func(_, v any) bool {
		if t := v.(*Task); t.SubmittedBy() == parent {
			out = append(out, t)
		}
		return true
	})
	return sortTasks(out)
}

// TotalSubmitted returns the number of tasks ever submitted.
func (m *Manager) TotalSubmitted() int64 { return m.total.Load() }

// NumIncomplete returns the number of submitted tasks that have not ended.
func (m *Manager) NumIncomplete() int64 { return m.incomplete.Load() }

// NumActive returns the number of task bodies currently running.
func (m *Manager) NumActive() int64 { return m.active.Load() }

// SetSchedulerForTag routes every task carrying tag to s instead of a new
// worker. When a task carries several scheduled tags, the first one added
// to the task wins.
func (m *Manager) SetSchedulerForTag(tag Tag, s Scheduler) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	m.schedulers[tag] = s
	return nil
}

// ClearSchedulerForTag removes the scheduler registered for tag.
func (m *Manager) ClearSchedulerForTag(tag Tag) {
	if validateTag(tag) != nil {
		return
	}
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	delete(m.schedulers, tag)
}

func (m *Manager) schedulerFor(tags []Tag) Scheduler {
	m.schedMu.RLock()
	defer m.schedMu.RUnlock()
	if len(m.schedulers) == 0 {
		return nil
	}
	for _, tag := range tags {
		if s, ok := m.schedulers[tag]; ok {
			return s
		}
	}
	return nil
}

// Wait blocks until all in-flight workers complete.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown rejects further submissions, cancels the context of every task
// and waits for workers to return or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
