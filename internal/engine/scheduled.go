package engine

import (
	"context"
	"fmt"
	"time"
)

// Schedule controls how a scheduled task repeats.
type Schedule struct {
	// Delay is waited before the first iteration.
	Delay time.Duration
	// Period is waited after each iteration ends before the next is
	// submitted. Zero runs a single iteration.
	Period time.Duration
	// MaxIterations stops the task after that many iterations. Zero means
	// no limit.
	MaxIterations int
	// ContinueOnFailure keeps iterating after an iteration fails. By default
	// the first failure ends the scheduled task with that failure.
	ContinueOnFailure bool
}

// NewScheduledTask builds a task that repeatedly submits a fresh task from
// factory, each one after the previous has ended. Every iteration is
// submitted by the scheduled task, so its bodies can reach the schedule
// through SubmittedBy and cancel it. The scheduled task's value is the last
// iteration's value. Cancelling it cancels the running iteration.
//
// The scheduled task holds a worker while it waits, so a bounded pool needs
// a second free worker for each iteration.
func NewScheduledTask(name string, s Schedule, factory func() Adaptable, tags ...Tag) *Task {
	return NewTask(name, func(ctx context.Context) (any, error) {
		return runSchedule(ctx, s, factory)
	}, tags...)
}

func runSchedule(ctx context.Context, s Schedule, factory func() Adaptable) (any, error) {
	if err := pause(ctx, s.Delay, "waiting to start"); err != nil {
		return nil, err
	}

	var last any
	for n := 1; ; n++ {
		SetExtraStatus(ctx, fmt.Sprintf("iteration %d", n))
		item := factory()
		if item == nil {
			return nil, fmt.Errorf("iteration %d: %w: nil", n, ErrUnsupportedWork)
		}
		child, err := submitFrom(ctx, item.AsTask())
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", n, err)
		}
		v, err := child.Get(ctx)
		if ctx.Err() != nil {
			child.Cancel()
			return nil, ctx.Err()
		}
		if err != nil && !s.ContinueOnFailure {
			return nil, fmt.Errorf("iteration %d: %w", n, err)
		}
		if err == nil {
			last = v
		}

		if s.Period <= 0 || (s.MaxIterations > 0 && n >= s.MaxIterations) {
			return last, nil
		}
		if err := pause(ctx, s.Period, "waiting for next iteration"); err != nil {
			return nil, err
		}
	}
}

// pause waits d, recording details on the running task meanwhile.
func pause(ctx context.Context, d time.Duration, details string) error {
	if d <= 0 {
		return ctx.Err()
	}
	SetBlockingDetails(ctx, details)
	defer SetBlockingDetails(ctx, "")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
