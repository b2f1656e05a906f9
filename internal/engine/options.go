package engine

import "fmt"

// ExpirationPolicy controls whether a finished task stays in the manager's
// index.
type ExpirationPolicy int

const (
	// ExpireNever retains a finished task until it is explicitly forgotten.
	ExpireNever ExpirationPolicy = iota
	// ExpireImmediate removes a task from every index as soon as it ends.
	ExpireImmediate
)

func (p ExpirationPolicy) String() string {
	switch p {
	case ExpireNever:
		return "never"
	case ExpireImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("ExpirationPolicy(%d)", int(p))
	}
}

// ParseExpirationPolicy parses "never" or "immediate".
func ParseExpirationPolicy(s string) (ExpirationPolicy, error) {
	switch s {
	case "never", "":
		return ExpireNever, nil
	case "immediate":
		return ExpireImmediate, nil
	default:
		return ExpireNever, fmt.Errorf("unknown expiration policy %q", s)
	}
}

// Callback is invoked on the task's own worker around its body.
type Callback func(t *Task)

type submitConfig struct {
	tags        []Tag
	onStart     Callback
	onEnd       Callback
	expiration  *ExpirationPolicy
	name        string
	description string
	ec          *ExecutionContext
}

// SubmitOption configures a single submission.
type SubmitOption func(*submitConfig)

// WithTag adds one tag to the submitted task.
func WithTag(tag Tag) SubmitOption {
	return func(c *submitConfig) {
		c.tags = append(c.tags, tag)
	}
}

// WithTags adds tags to the submitted task.
func WithTags(tags ...Tag) SubmitOption {
	return func(c *submitConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// WithStartCallback runs fn on the worker immediately before the task starts.
// It is ignored when the submitted task had already been submitted.
func WithStartCallback(fn Callback) SubmitOption {
	return func(c *submitConfig) {
		c.onStart = fn
	}
}

// WithEndCallback runs fn on the worker immediately after the body returns,
// before the task is marked ended.
func WithEndCallback(fn Callback) SubmitOption {
	return func(c *submitConfig) {
		c.onEnd = fn
	}
}

// WithExpiration overrides the manager's default expiration policy.
func WithExpiration(p ExpirationPolicy) SubmitOption {
	return func(c *submitConfig) {
		c.expiration = &p
	}
}

// WithName sets the display name of a task adapted from a plain function.
func WithName(name string) SubmitOption {
	return func(c *submitConfig) {
		c.name = name
	}
}

// WithDescription sets the description of a task adapted from a plain function.
func WithDescription(desc string) SubmitOption {
	return func(c *submitConfig) {
		c.description = desc
	}
}

func withExecutionContext(ec *ExecutionContext) SubmitOption {
	return func(c *submitConfig) {
		c.ec = ec
	}
}

type managerConfig struct {
	workers    int64
	expiration ExpirationPolicy
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// WithWorkers bounds the number of workers busy at once. Zero or a negative
// value means unbounded. A running dynamic composition holds a second worker
// while it drains its children, and its children run on that worker, so each
// level of nested compositions needs two workers.
func WithWorkers(n int) ManagerOption {
	return func(c *managerConfig) {
		c.workers = int64(n)
	}
}

// WithDefaultExpiration sets the policy used when a submission does not
// specify one.
func WithDefaultExpiration(p ExpirationPolicy) ManagerOption {
	return func(c *managerConfig) {
		c.expiration = p
	}
}
