// Package command runs local processes as engine tasks.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/seantiz/conductor/internal/engine"
)

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// waitDelay bounds how long Run waits for output pipes to close after the
// process is killed.
const waitDelay = 100 * time.Millisecond

// Command is a process to run as a task. The task value is the process's
// trimmed standard output.
type Command struct {
	Name string
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env is added to the parent environment.
	Env map[string]string
}

// New creates a command running name with args.
func New(name string, args ...string) *Command {
	return &Command{Name: name, Args: args}
}

// Shell creates a command running script under sh -c.
func Shell(script string) *Command {
	return New("sh", "-c", script)
}

func (c *Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// AsTask builds a fresh task running the command.
func (c *Command) AsTask() *engine.Task {
	return engine.NewTask(c.Name, c.Run).Describe("Running " + c.String())
}

// Run runs the command to completion. Cancelling ctx kills the process and
// any children it started.
func (c *Command) Run(ctx context.Context) (any, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	if len(c.Env) > 0 {
		keys := make([]string, 0, len(c.Env))
		for k := range c.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cmd.Env = cmd.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+c.Env[k])
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	engine.SetBlockingDetails(ctx, "running "+c.String())
	defer engine.SetBlockingDetails(ctx, "")

	err := cmd.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Command:  c.String(),
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return nil, fmt.Errorf("run %s: %w", c.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
