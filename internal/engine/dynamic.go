package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// CompositionState is the lifecycle of a dynamic composition.
type CompositionState int

const (
	CompositionNotStarted CompositionState = iota
	CompositionRunningPrimary
	CompositionRunningChildren
	CompositionEnded
)

func (s CompositionState) String() string {
	switch s {
	case CompositionNotStarted:
		return "not_started"
	case CompositionRunningPrimary:
		return "running_primary"
	case CompositionRunningChildren:
		return "running_children"
	case CompositionEnded:
		return "ended"
	default:
		return fmt.Sprintf("CompositionState(%d)", int(s))
	}
}

// FailurePolicy decides how child and primary failures affect a composition.
type FailurePolicy struct {
	// FailParentOnChildFailure marks the composition failed when an essential
	// child fails.
	FailParentOnChildFailure bool
	// AbortQueueOnChildFailure withdraws the children that have not started
	// once an essential child fails.
	AbortQueueOnChildFailure bool
	// AbortQueueOnPrimaryFailure withdraws the children that have not started
	// when the primary job fails.
	AbortQueueOnPrimaryFailure bool
}

var (
	// DefaultFailurePolicy fails the composition on any essential child
	// failure and keeps draining the queue.
	DefaultFailurePolicy = FailurePolicy{FailParentOnChildFailure: true}
	// SwallowFailures ignores child failures entirely.
	SwallowFailures = FailurePolicy{}
)

// ErrorHandler is invoked once with a composition's failure. Its return
// value replaces the failure.
type ErrorHandler func(t *Task, err error) error

type dynamicConfig struct {
	policy  FailurePolicy
	onError ErrorHandler
	tags    []Tag
}

// DynamicOption configures a dynamic composition.
type DynamicOption func(*dynamicConfig)

// WithFailurePolicy replaces DefaultFailurePolicy.
func WithFailurePolicy(p FailurePolicy) DynamicOption {
	return func(c *dynamicConfig) {
		c.policy = p
	}
}

// WithErrorHandler installs the composition's error handler.
func WithErrorHandler(h ErrorHandler) DynamicOption {
	return func(c *dynamicConfig) {
		c.onError = h
	}
}

// WithCompositionTags tags the composition task itself.
func WithCompositionTags(tags ...Tag) DynamicOption {
	return func(c *dynamicConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// composition is the queueing context of a dynamic task: the ordered list of
// queued children and the loop that runs them one at a time.
type composition struct {
	self    *Task
	primary Job
	onError ErrorHandler

	mu       sync.Mutex
	cond     *sync.Cond
	policy   FailurePolicy
	children []*Task
	next     int
	last     *Task
	state    CompositionState
	closed   bool
	aborted  bool
	drained  chan struct{}
}

// NewDynamicTask builds a task whose body runs primary with a queueing
// context installed, then waits for every child queued while it ran. Children
// run one at a time in queue order on a separate worker, and may start while
// primary is still running. A nil primary yields a composition whose value
// is the list of its children's values.
func NewDynamicTask(name string, primary Job, opts ...DynamicOption) *Task {
	cfg := dynamicConfig{policy: DefaultFailurePolicy}
	for _, o := range opts {
		o(&cfg)
	}

	c := &composition{
		primary: primary,
		onError: cfg.onError,
		policy:  cfg.policy,
		drained: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)

	t := NewTask(name, c.run, cfg.tags...)
	t.comp = c
	c.self = t
	return t
}

// Queue appends item to the composition t. It fails with ErrNotDynamic for
// ordinary tasks and ErrQueueClosed once t's primary has returned.
func (t *Task) Queue(item Adaptable) (*Task, error) {
	if t.comp == nil {
		return nil, fmt.Errorf("queue into %s: %w", t.name, ErrNotDynamic)
	}
	return t.comp.add(item)
}

// CompositionState reports the state of a dynamic composition. Ordinary tasks
// report CompositionNotStarted.
func (t *Task) CompositionState() CompositionState {
	if t.comp == nil {
		return CompositionNotStarted
	}
	t.comp.mu.Lock()
	defer t.comp.mu.Unlock()
	return t.comp.state
}

// IsDynamic reports whether t is a dynamic composition.
func (t *Task) IsDynamic() bool {
	return t.comp != nil
}

// Queued returns the children queued into a dynamic composition, in order.
func (t *Task) Queued() []*Task {
	if t.comp == nil {
		return nil
	}
	return t.comp.snapshot()
}

func (c *composition) add(item Adaptable) (*Task, error) {
	if item == nil {
		return nil, fmt.Errorf("queue: %w: nil", ErrUnsupportedWork)
	}
	child := item.AsTask()
	if child == nil {
		return nil, fmt.Errorf("queue: %w: %T adapted to a nil task", ErrUnsupportedWork, item)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("queue %s: %w", child.name, ErrQueueClosed)
	}
	if err := child.markQueued(c.self); err != nil {
		return nil, err
	}
	c.children = append(c.children, child)
	c.last = child
	c.cond.Signal()
	return child, nil
}

func (c *composition) lastQueued() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *composition) snapshot() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Task, len(c.children))
	copy(out, c.children)
	return out
}

func (c *composition) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *composition) setPolicy(p FailurePolicy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// run is the body of the composition task.
func (c *composition) run(ctx context.Context) (any, error) {
	m := c.self.Manager()

	c.mu.Lock()
	c.state = CompositionRunningPrimary
	c.mu.Unlock()

	m.wg.Go(func() {
		c.drain(ctx)
	})

	var result any
	var primaryErr error
	if c.primary != nil {
		result, primaryErr = callJob(withQueue(ctx, c), c.self.name, c.primary)
	}

	c.mu.Lock()
	c.closed = true
	if c.state == CompositionRunningPrimary {
		c.state = CompositionRunningChildren
	}
	if primaryErr != nil && c.policy.AbortQueueOnPrimaryFailure {
		c.aborted = true
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	<-c.drained

	c.mu.Lock()
	c.state = CompositionEnded
	policy, aborted := c.policy, c.aborted
	children := append([]*Task(nil), c.children...)
	c.mu.Unlock()

	var merr *multierror.Error
	if primaryErr != nil {
		merr = multierror.Append(merr, primaryErr)
	}
	values := make([]any, 0, len(children))
	for _, child := range children {
		v, err := child.Get(context.Background())
		values = append(values, v)
		if err == nil || child.IsInessential() || !policy.FailParentOnChildFailure {
			continue
		}
		if errors.Is(err, ErrCancelled) && (aborted || c.self.IsCancelled()) {
			continue
		}
		if primaryErr != nil && errors.Is(primaryErr, err) {
			continue
		}
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", child.name, err))
	}

	if c.primary == nil {
		result = values
	}
	err := flatten(merr)
	if err != nil && c.onError != nil {
		err = c.onError(c.self, err)
	}
	return result, err
}

// drain submits queued children one at a time, waiting for each to end
// before starting the next. It returns once the queue is closed and empty.
// In a bounded pool drain takes one worker slot before the first child runs
// and holds it until it returns; the children run on that slot.
func (c *composition) drain(ctx context.Context) {
	defer close(c.drained)
	sem := c.self.Manager().sem
	holding := false
	defer func() {
		if holding {
			sem.Release(1)
		}
	}()
	for {
		c.mu.Lock()
		for c.next >= len(c.children) && !c.closed {
			c.cond.Wait()
		}
		if c.next >= len(c.children) {
			c.mu.Unlock()
			return
		}
		child := c.children[c.next]
		c.next++
		aborted := c.aborted
		c.mu.Unlock()

		if aborted || c.self.IsCancelled() {
			child.withdraw()
			continue
		}
		if sem != nil && !holding {
			if err := sem.Acquire(ctx, 1); err != nil {
				child.withdraw()
				continue
			}
			holding = true
		}
		child.mu.Lock()
		child.onDrainSlot = sem != nil
		child.mu.Unlock()
		if _, err := submitFrom(ctx, child); err != nil {
			c.self.Manager().logger.Warn("could not submit queued task",
				"task_id", child.id, "parent_id", c.self.id, "error", err)
			child.withdraw()
			continue
		}
		_ = child.BlockUntilEnded(context.Background())

		if err := child.Err(); err != nil && !child.IsInessential() {
			c.mu.Lock()
			if c.policy.AbortQueueOnChildFailure {
				c.aborted = true
			}
			c.mu.Unlock()
		}
	}
}

// cancelPending withdraws the children that have not been started. The child
// most recently handed to the manager may still be waiting for a worker; it
// is cancelled too unless its body has begun.
func (c *composition) cancelPending() {
	c.mu.Lock()
	pending := append([]*Task(nil), c.children[c.next:]...)
	var inFlight *Task
	if c.next > 0 {
		inFlight = c.children[c.next-1]
	}
	c.mu.Unlock()
	if inFlight != nil {
		inFlight.cancelUnstarted()
	}
	for _, child := range pending {
		child.withdraw()
	}
}

// abandon ends every child of a composition that was withdrawn before its
// body ran.
func (c *composition) abandon() {
	c.mu.Lock()
	c.closed = true
	c.state = CompositionEnded
	children := append([]*Task(nil), c.children...)
	c.cond.Broadcast()
	c.mu.Unlock()
	for _, child := range children {
		child.withdraw()
	}
}

// callJob runs a job outside of Task.invoke, converting a panic into a
// failure.
func callJob(ctx context.Context, name string, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
	}()
	return job(ctx)
}

// flatten returns nil, the single error, or the aggregate.
func flatten(merr *multierror.Error) error {
	if merr == nil || len(merr.Errors) == 0 {
		return nil
	}
	if len(merr.Errors) == 1 {
		return merr.Errors[0]
	}
	merr.ErrorFormat = func(errs []error) string {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Sprintf("%d failures: %s", len(errs), strings.Join(msgs, "; "))
	}
	return merr
}
