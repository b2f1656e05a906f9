// testserver starts a Conductor API server with demo entities for manual and
// end-to-end testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/conductor/internal/api"
	"github.com/seantiz/conductor/internal/command"
	"github.com/seantiz/conductor/internal/effector"
	"github.com/seantiz/conductor/internal/engine"
	"github.com/seantiz/conductor/internal/store"
)

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stubService builds start, stop and restart effectors that pretend to
// manage a service, taking delay per step.
func stubService(delay time.Duration) []*effector.Effector {
	start := &effector.Effector{
		Name:        "start",
		Description: "Start the service",
		Body: func(ctx context.Context, e effector.Entity, _ effector.Args) (any, error) {
			engine.SetBlockingDetails(ctx, "waiting for "+e.DisplayName()+" to come up")
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			return "running", nil
		},
	}
	stop := &effector.Effector{
		Name:        "stop",
		Description: "Stop the service",
		Body: func(ctx context.Context, _ effector.Entity, _ effector.Args) (any, error) {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			return "stopped", nil
		},
	}
	restart := &effector.Effector{
		Name:        "restart",
		Description: "Stop then start the service",
		Body: func(ctx context.Context, e effector.Entity, _ effector.Args) (any, error) {
			ec := engine.CurrentExecutionContext(ctx)
			if _, err := effector.Invoke(ctx, ec, e, stop, nil); err != nil {
				return nil, err
			}
			return effector.Invoke(ctx, ec, e, start, nil)
		},
	}
	deploy := &effector.Effector{
		Name:        "deploy",
		Description: "Run the deploy steps; the second step always fails",
		Parameters:  []effector.Parameter{{Name: "version", Default: "latest"}},
		Body: func(ctx context.Context, _ effector.Entity, args effector.Args) (any, error) {
			if _, err := engine.Queue(ctx, command.New("echo", fmt.Sprint("fetching ", args["version"]))); err != nil {
				return nil, err
			}
			if _, err := engine.Queue(ctx, command.Shell("echo migration failed >&2; exit 1")); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}
	return []*effector.Effector{start, stop, restart, deploy}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("CONDUCTOR_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	m := engine.NewManager(logger, engine.WithWorkers(16))
	m.OnTaskEnded(store.NewRecorder(db, logger))

	reg := effector.NewRegistry(m, logger)
	reg.Register(effector.NewEntity("web-1"), stubService(500*time.Millisecond)...)
	reg.Register(effector.NewEntity("db-1"), stubService(time.Second)...)

	srv := api.NewServer(addr, m, reg, db, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = m.Shutdown(ctx)
}
