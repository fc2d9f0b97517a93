// Package main is the entry point for the movie catalog server.
//
// main stays minimal: read configuration from the environment, set up the
// store and the logger, start the server. All actual logic lives in the
// internal packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/sakif/movie-catalog/internal/repository/sqlite"
	"github.com/sakif/movie-catalog/internal/server"
)

// envInt reads an integer environment variable, falling back to def when
// unset. An unparsable value is a startup error, not a silent default.
func envInt(logger *slog.Logger, name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Error("invalid integer in environment",
			slog.String("var", name),
			slog.String("value", raw),
		)
		os.Exit(1)
	}
	return v
}

func main() {
	level := slog.LevelInfo
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			level = slog.LevelInfo
		}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	dbPath := "data/movies.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	cfg := server.Config{
		Port:              envInt(logger, "PORT", 12345),
		AdminPort:         envInt(logger, "ADMIN_PORT", 0),
		DBPath:            dbPath,
		Workers:           envInt(logger, "WORKER_COUNT", runtime.NumCPU()),
		QueueCapacity:     envInt(logger, "QUEUE_CAPACITY", 64),
		MaxEnqueueRetries: envInt(logger, "MAX_ENQUEUE_RETRIES", 1000),
		ClientTimeout:     time.Duration(envInt(logger, "CLIENT_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	// Create the file and apply the schema before any worker connects.
	if err := sqlite.Setup(cfg.DBPath); err != nil {
		logger.Error("database setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down via SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
