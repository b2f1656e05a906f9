package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/conductor/internal/engine"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "conductor.db"

	envListenAddr     = "CONDUCTOR_LISTEN_ADDR"
	envDBPath         = "CONDUCTOR_DB_PATH"
	envLogLevel       = "CONDUCTOR_LOG_LEVEL"
	envWorkers        = "CONDUCTOR_WORKERS"
	envTaskExpiration = "CONDUCTOR_TASK_EXPIRATION"
	envHistory        = "CONDUCTOR_HISTORY_ENABLED"
)

// Config holds application configuration.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	// Workers bounds concurrently running tasks. Zero means unbounded.
	Workers        int
	TaskExpiration engine.ExpirationPolicy
	HistoryEnabled bool
}

// fileConfig is the YAML layout of the config file. Absent keys keep their
// defaults.
type fileConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	DBPath         string `yaml:"db_path"`
	LogLevel       string `yaml:"log_level"`
	Workers        *int   `yaml:"workers"`
	TaskExpiration string `yaml:"task_expiration"`
	HistoryEnabled *bool  `yaml:"history_enabled"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:     defaultListenAddr,
		DBPath:         defaultDBPath,
		LogLevel:       slog.LevelInfo,
		TaskExpiration: engine.ExpireNever,
		HistoryEnabled: true,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then CONDUCTOR_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyFile(data); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(data []byte) error {
	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	if fc.ListenAddr != "" {
		c.ListenAddr = fc.ListenAddr
	}
	if fc.DBPath != "" {
		c.DBPath = fc.DBPath
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.Workers != nil {
		if *fc.Workers < 0 {
			return fmt.Errorf("workers must not be negative, got %d", *fc.Workers)
		}
		c.Workers = *fc.Workers
	}
	if fc.TaskExpiration != "" {
		p, err := engine.ParseExpirationPolicy(fc.TaskExpiration)
		if err != nil {
			return err
		}
		c.TaskExpiration = p
	}
	if fc.HistoryEnabled != nil {
		c.HistoryEnabled = *fc.HistoryEnabled
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(envListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%s: invalid worker count %q", envWorkers, v)
		}
		c.Workers = n
	}
	if v := os.Getenv(envTaskExpiration); v != "" {
		p, err := engine.ParseExpirationPolicy(v)
		if err != nil {
			return fmt.Errorf("%s: %w", envTaskExpiration, err)
		}
		c.TaskExpiration = p
	}
	if v := os.Getenv(envHistory); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", envHistory, v)
		}
		c.HistoryEnabled = b
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
