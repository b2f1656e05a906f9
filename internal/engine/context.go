package engine

import "context"

type ctxKey int

const (
	currentTaskKey ctxKey = iota
	executionContextKey
	queueKey
)

// CurrentTask returns the task whose body is running with ctx, or nil.
// Nested invocations derive their contexts from the caller's, so the
// association is restored automatically when they return.
func CurrentTask(ctx context.Context) *Task {
	t, _ := ctx.Value(currentTaskKey).(*Task)
	return t
}

func withCurrentTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, currentTaskKey, t)
}

// CurrentExecutionContext returns the execution context the running task was
// submitted through, or nil.
func CurrentExecutionContext(ctx context.Context) *ExecutionContext {
	ec, _ := ctx.Value(executionContextKey).(*ExecutionContext)
	return ec
}

func withExecutionContextValue(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, ec)
}

// ExecutionContext is a per-owner facade over a Manager. Everything submitted
// through it carries the owner's tags, and bodies running under it can find
// it again with CurrentExecutionContext.
type ExecutionContext struct {
	manager *Manager
	tags    []Tag
}

// NewExecutionContext binds tags, typically the owning entity, to m.
func NewExecutionContext(m *Manager, tags ...Tag) *ExecutionContext {
	return &ExecutionContext{
		manager: m,
		tags:    append([]Tag(nil), tags...),
	}
}

// Manager returns the underlying manager.
func (ec *ExecutionContext) Manager() *Manager {
	return ec.manager
}

// Tags returns the owner tags applied to every submission.
func (ec *ExecutionContext) Tags() []Tag {
	return append([]Tag(nil), ec.tags...)
}

// Submit submits work to the manager with the owner tags applied.
func (ec *ExecutionContext) Submit(ctx context.Context, work any, opts ...SubmitOption) (*Task, error) {
	all := make([]SubmitOption, 0, len(opts)+2)
	all = append(all, WithTags(ec.tags...))
	all = append(all, opts...)
	all = append(all, withExecutionContext(ec))
	return ec.manager.Submit(ctx, work, all...)
}

// Get submits work and waits for its value.
func (ec *ExecutionContext) Get(ctx context.Context, work any, opts ...SubmitOption) (any, error) {
	t, err := ec.Submit(ctx, work, opts...)
	if err != nil {
		return nil, err
	}
	return t.Get(ctx)
}

// Tasks returns the retained tasks carrying all of the owner tags.
func (ec *ExecutionContext) Tasks() []*Task {
	return ec.manager.GetTasksWithAllTags(ec.tags...)
}

// CurrentTask returns the task running with ctx, or nil.
func (ec *ExecutionContext) CurrentTask(ctx context.Context) *Task {
	return CurrentTask(ctx)
}

// submitFrom submits t through whatever ctx offers: the running task's
// execution context, or the manager of the running task.
func submitFrom(ctx context.Context, t *Task) (*Task, error) {
	if ec := CurrentExecutionContext(ctx); ec != nil {
		return ec.Submit(ctx, t)
	}
	if cur := CurrentTask(ctx); cur != nil {
		if m := cur.Manager(); m != nil {
			return m.Submit(ctx, t)
		}
	}
	return nil, ErrNoManager
}

// SetBlockingDetails records what the running task is waiting for. An empty
// string clears it.
func SetBlockingDetails(ctx context.Context, details string) {
	if t := CurrentTask(ctx); t != nil {
		t.setBlocking(details, nil)
	}
}

// WithBlockingDetails runs fn with details recorded on the running task.
func WithBlockingDetails(ctx context.Context, details string, fn func() error) error {
	t := CurrentTask(ctx)
	if t == nil {
		return fn()
	}
	prev, prevTask := t.BlockingDetails()
	t.setBlocking(details, nil)
	defer t.setBlocking(prev, prevTask)
	return fn()
}

// SetExtraStatus attaches free-form status text to the running task.
func SetExtraStatus(ctx context.Context, text string) {
	if t := CurrentTask(ctx); t != nil {
		t.mu.Lock()
		t.extraStatus = text
		t.mu.Unlock()
	}
}

// MarkInessential marks the running task so that its failure does not fail
// the composition that queued it.
func MarkInessential(ctx context.Context) {
	if t := CurrentTask(ctx); t != nil {
		t.MarkInessential()
	}
}
