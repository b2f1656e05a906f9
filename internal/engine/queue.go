package engine

import (
	"context"
	"fmt"
)

func withQueue(ctx context.Context, c *composition) context.Context {
	return context.WithValue(ctx, queueKey, c)
}

func queueFrom(ctx context.Context) *composition {
	c, _ := ctx.Value(queueKey).(*composition)
	return c
}

// Queue appends item to the queueing context of the running composition and
// returns the queued task without waiting for it.
func Queue(ctx context.Context, item Adaptable) (*Task, error) {
	c := queueFrom(ctx)
	if c == nil {
		return nil, ErrNoQueueingContext
	}
	return c.add(item)
}

// QueueIfPossible queues item when ctx has an open queueing context and
// reports whether it did.
func QueueIfPossible(ctx context.Context, item Adaptable) (*Task, bool) {
	c := queueFrom(ctx)
	if c == nil || !c.isOpen() {
		return nil, false
	}
	t, err := c.add(item)
	return t, err == nil
}

// QueueInHierarchy queues item into the nearest open composition, looking
// first at ctx and then at the submitters of the running task.
func QueueInHierarchy(ctx context.Context, item Adaptable) (*Task, error) {
	if c := queueFrom(ctx); c != nil && c.isOpen() {
		return c.add(item)
	}
	for t := CurrentTask(ctx); t != nil; t = t.SubmittedBy() {
		if t.comp != nil && t.comp.isOpen() {
			return t.comp.add(item)
		}
	}
	return nil, ErrNoQueueingContext
}

// Last returns the most recently queued task without waiting.
func Last(ctx context.Context) (*Task, error) {
	c := queueFrom(ctx)
	if c == nil {
		return nil, ErrNoQueueingContext
	}
	t := c.lastQueued()
	if t == nil {
		return nil, ErrNothingQueued
	}
	return t, nil
}

// WaitForLast waits for the most recently queued task to end and returns it.
// Only ctx can make the wait fail; the task's own failure is left for the
// caller to inspect.
func WaitForLast(ctx context.Context) (*Task, error) {
	t, err := Last(ctx)
	if err != nil {
		return nil, err
	}
	if cur := CurrentTask(ctx); cur != nil {
		cur.setBlocking("waiting for "+t.name, t)
		defer cur.setBlocking("", nil)
	}
	if err := t.BlockUntilEnded(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// LastAs waits for the most recently queued task and converts its value to
// T, returning the task's failure if it failed.
func LastAs[T any](ctx context.Context) (T, error) {
	var zero T
	t, err := WaitForLast(ctx)
	if err != nil {
		return zero, err
	}
	return GetAs[T](ctx, t)
}

// Drain waits for every task queued so far. With failFast it returns the
// first essential failure instead of waiting for the rest.
func Drain(ctx context.Context, failFast bool) error {
	c := queueFrom(ctx)
	if c == nil {
		return ErrNoQueueingContext
	}
	for _, t := range c.snapshot() {
		if err := t.BlockUntilEnded(ctx); err != nil {
			return err
		}
		if failFast && !t.IsInessential() {
			if err := t.Err(); err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
		}
	}
	return nil
}

// SwallowChildrenFailures makes the running composition ignore child
// failures.
func SwallowChildrenFailures(ctx context.Context) error {
	c := queueFrom(ctx)
	if c == nil {
		return ErrNoQueueingContext
	}
	c.setPolicy(SwallowFailures)
	return nil
}

// SetFailurePolicy replaces the running composition's failure policy.
func SetFailurePolicy(ctx context.Context, p FailurePolicy) error {
	c := queueFrom(ctx)
	if c == nil {
		return ErrNoQueueingContext
	}
	c.setPolicy(p)
	return nil
}
