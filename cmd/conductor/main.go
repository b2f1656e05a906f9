package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/seantiz/conductor/internal/api"
	"github.com/seantiz/conductor/internal/config"
	"github.com/seantiz/conductor/internal/effector"
	"github.com/seantiz/conductor/internal/engine"
	"github.com/seantiz/conductor/internal/store"
)

const drainTimeout = 30 * time.Second

func main() {
	// Load .env if present; the environment always wins.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONDUCTOR_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("conductor: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workers", cfg.Workers,
		"task_expiration", cfg.TaskExpiration.String(),
		"history", cfg.HistoryEnabled,
	)

	m := engine.NewManager(logger,
		engine.WithWorkers(cfg.Workers),
		engine.WithDefaultExpiration(cfg.TaskExpiration),
	)

	var history store.Store
	if cfg.HistoryEnabled {
		db, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		m.OnTaskEnded(store.NewRecorder(db, logger))
		history = db
	}

	reg := effector.NewRegistry(m, logger)
	registerHost(reg)

	srv := api.NewServer(cfg.ListenAddr, m, reg, history, logger)
	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		logger.Warn("tasks still running at exit", "error", err, "active", m.NumActive())
	}
}
