package main

import (
	"context"
	"os"

	"github.com/seantiz/conductor/internal/command"
	"github.com/seantiz/conductor/internal/effector"
	"github.com/seantiz/conductor/internal/engine"
)

// registerHost registers the local machine as an entity with effectors that
// run shell commands.
func registerHost(reg *effector.Registry) {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "localhost"
	}
	host := effector.NewEntity(name)

	reg.Register(host,
		&effector.Effector{
			Name:        "exec",
			Description: "Run a shell command and return its output",
			Parameters: []effector.Parameter{
				{Name: "command", Description: "shell command line", Required: true},
				{Name: "dir", Description: "working directory"},
			},
			Body: func(ctx context.Context, _ effector.Entity, args effector.Args) (any, error) {
				var p struct {
					Command string `json:"command"`
					Dir     string `json:"dir"`
				}
				if err := args.Decode(&p); err != nil {
					return nil, err
				}
				cmd := command.Shell(p.Command)
				cmd.Dir = p.Dir
				if _, err := engine.Queue(ctx, cmd); err != nil {
					return nil, err
				}
				return engine.LastAs[string](ctx)
			},
		},
		&effector.Effector{
			Name:        "script",
			Description: "Run shell commands one after another, stopping at the first failure",
			Parameters: []effector.Parameter{
				{Name: "commands", Description: "list of shell command lines", Required: true},
			},
			Body: func(ctx context.Context, _ effector.Entity, args effector.Args) (any, error) {
				var p struct {
					Commands []string `json:"commands"`
				}
				if err := args.Decode(&p); err != nil {
					return nil, err
				}
				if err := engine.SetFailurePolicy(ctx, engine.FailurePolicy{
					FailParentOnChildFailure: true,
					AbortQueueOnChildFailure: true,
				}); err != nil {
					return nil, err
				}
				for _, line := range p.Commands {
					if _, err := engine.Queue(ctx, command.Shell(line)); err != nil {
						return nil, err
					}
				}
				return len(p.Commands), nil
			},
		},
	)
}
