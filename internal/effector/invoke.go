package effector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/conductor/internal/engine"
)

// ErrNoExecutionContext is returned when an invocation has nowhere to run.
var ErrNoExecutionContext = errors.New("no execution context for entity")

// InvocationError is the single error an invocation surfaces, naming the
// entity and effector whatever the depth of the failure.
type InvocationError struct {
	EntityID string
	Entity   string
	Effector string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s on %s: %v", e.Effector, e.Entity, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// NewTask builds the dynamic composition that runs eff on entity. It is
// tagged with EffectorTag, the entity and NameTag(eff.Name), and its
// failures are translated into an *InvocationError.
func NewTask(entity Entity, eff *Effector, args Args) *engine.Task {
	return newTask(entity, eff, args, nil)
}

func newTask(entity Entity, eff *Effector, args Args, logger *slog.Logger) *engine.Task {
	primary := func(ctx context.Context) (any, error) {
		return eff.Body(ctx, entity, args)
	}
	t := engine.NewDynamicTask(eff.Name, primary,
		engine.WithCompositionTags(EffectorTag, entity, NameTag(eff.Name)),
		engine.WithErrorHandler(translate(entity, eff, logger)),
	)
	return t.Describe(fmt.Sprintf("Invoking effector %s on %s", eff.Name, entity.DisplayName()))
}

// translate wraps a composition failure once. A failure that already names
// this entity and effector passes through unchanged.
func translate(entity Entity, eff *Effector, logger *slog.Logger) engine.ErrorHandler {
	return func(t *engine.Task, err error) error {
		if logger != nil {
			if errors.Is(err, engine.ErrCancelled) || errors.Is(err, context.Canceled) {
				logger.Info("effector cancelled", "entity", entity.DisplayName(), "effector", eff.Name, "task_id", t.ID())
			} else {
				logger.Info("effector failed", "entity", entity.DisplayName(), "effector", eff.Name, "task_id", t.ID(), "error", err)
			}
		}
		var ie *InvocationError
		if errors.As(err, &ie) && ie.EntityID == entity.ID() && ie.Effector == eff.Name {
			return err
		}
		return &InvocationError{
			EntityID: entity.ID(),
			Entity:   entity.DisplayName(),
			Effector: eff.Name,
			Err:      err,
		}
	}
}

// isReentrant reports whether ctx is already running eff on entity.
func isReentrant(ctx context.Context, entity Entity, eff *Effector) bool {
	cur := engine.CurrentTask(ctx)
	return cur != nil && cur.HasAllTags(EffectorTag, entity, NameTag(eff.Name))
}

// InvokeAsync submits eff on entity through ec and returns the task without
// waiting for it.
func InvokeAsync(ctx context.Context, ec *engine.ExecutionContext, entity Entity, eff *Effector, raw map[string]any) (*engine.Task, error) {
	return invokeAsync(ctx, ec, entity, eff, raw, nil)
}

func invokeAsync(ctx context.Context, ec *engine.ExecutionContext, entity Entity, eff *Effector, raw map[string]any, logger *slog.Logger) (*engine.Task, error) {
	args, err := PrepareArgs(eff, raw)
	if err != nil {
		return nil, err
	}
	if ec == nil {
		return nil, fmt.Errorf("invoke %s on %s: %w", eff.Name, entity.DisplayName(), ErrNoExecutionContext)
	}
	return ec.Submit(ctx, newTask(entity, eff, args, logger))
}

// Invoke runs eff on entity and waits for its value.
//
// Called from a task that is itself running eff on entity, the body runs
// directly in the caller without creating another task. Called from inside
// another composition, the invocation is queued there as a child. Otherwise
// it is submitted through ec.
func Invoke(ctx context.Context, ec *engine.ExecutionContext, entity Entity, eff *Effector, raw map[string]any) (any, error) {
	return invoke(ctx, ec, entity, eff, raw, nil)
}

func invoke(ctx context.Context, ec *engine.ExecutionContext, entity Entity, eff *Effector, raw map[string]any, logger *slog.Logger) (any, error) {
	args, err := PrepareArgs(eff, raw)
	if err != nil {
		return nil, err
	}
	if isReentrant(ctx, entity, eff) {
		return eff.Body(ctx, entity, args)
	}

	t := newTask(entity, eff, args, logger)
	if _, ok := engine.QueueIfPossible(ctx, t); ok {
		return t.Get(ctx)
	}
	if ec == nil {
		return nil, fmt.Errorf("invoke %s on %s: %w", eff.Name, entity.DisplayName(), ErrNoExecutionContext)
	}
	if _, err := ec.Submit(ctx, t); err != nil {
		return nil, err
	}
	return t.Get(ctx)
}
