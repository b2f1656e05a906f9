package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Sequential builds a composition that runs items one after another. Its
// value is the list of the items' values.
func Sequential(name string, items ...Adaptable) (*Task, error) {
	t := NewDynamicTask(name, nil)
	for _, item := range items {
		if _, err := t.Queue(item); err != nil {
			return nil, fmt.Errorf("sequential %s: %w", name, err)
		}
	}
	return t, nil
}

// Parallel builds a task that submits items together when it runs and waits
// for all of them. Its value is the list of the items' values, in item
// order; it fails with the first failure observed. Cancelling it cancels the
// items.
func Parallel(name string, items ...Adaptable) (*Task, error) {
	children := make([]*Task, 0, len(items))
	for _, item := range items {
		if item == nil || item.AsTask() == nil {
			return nil, fmt.Errorf("parallel %s: %w", name, ErrUnsupportedWork)
		}
		child := item.AsTask()
		if child.IsSubmitted() || child.IsQueued() {
			return nil, fmt.Errorf("parallel %s: %s: %w", name, child.name, ErrAlreadySubmitted)
		}
		children = append(children, child)
	}

	job := func(ctx context.Context) (any, error) {
		for _, child := range children {
			if _, err := submitFrom(ctx, child); err != nil {
				return nil, err
			}
		}

		values := make([]any, len(children))
		var g errgroup.Group
		for i, child := range children {
			g.Go(func() error {
				v, err := child.Get(ctx)
				values[i] = v
				if err != nil {
					return fmt.Errorf("%s: %w", child.name, err)
				}
				return nil
			})
		}
		err := g.Wait()
		if ctx.Err() != nil {
			for _, child := range children {
				child.Cancel()
			}
		}
		return values, err
	}
	return NewTask(name, job), nil
}
