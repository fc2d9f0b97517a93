// Package server wires the pieces together: it owns the TCP listener, the
// accept loop with admission control, the worker pool, the optional admin
// HTTP listener and the signal-driven shutdown sequence.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/movie-catalog/internal/handler"
	"github.com/sakif/movie-catalog/internal/metrics"
	"github.com/sakif/movie-catalog/internal/middleware"
	"github.com/sakif/movie-catalog/internal/repository/sqlite"
)

// Config holds the server configuration, loaded from the environment by
// cmd/server.
type Config struct {
	Port      int
	AdminPort int // 0 disables the admin listener
	DBPath    string

	Workers           int
	QueueCapacity     int // must be a power of two
	MaxEnqueueRetries int
	ClientTimeout     time.Duration
}

// Server accepts client connections and dispatches them to the worker pool.
type Server struct {
	config  Config
	logger  *slog.Logger
	pool    *Pool
	started time.Time
}

// New validates cfg and assembles the server. The database file must already
// be set up (sqlite.Setup); each worker opens its own connection on start.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", cfg.Workers)
	}
	if cfg.MaxEnqueueRetries <= 0 {
		return nil, fmt.Errorf("enqueue retries must be positive, got %d", cfg.MaxEnqueueRetries)
	}

	h := handler.New(logger, cfg.ClientTimeout)
	pool, err := NewPool(cfg, logger, h)
	if err != nil {
		return nil, err
	}

	return &Server{
		config: cfg,
		logger: logger,
		pool:   pool,
	}, nil
}

// Start binds the listener, runs the pool and blocks until a termination
// signal or a listener failure. Shutdown is cooperative: stop accepting,
// wake and join every worker, close whatever is left in the queue.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	s.started = time.Now()
	s.pool.Start()

	var admin *http.Server
	if s.config.AdminPort > 0 {
		admin = s.startAdmin()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	acceptErrors := make(chan error, 1)
	go s.acceptLoop(listener, acceptErrors)

	s.logger.Info("server started",
		slog.Int("port", s.config.Port),
		slog.String("database", s.config.DBPath),
		slog.Int("workers", s.config.Workers),
	)

	select {
	case err := <-acceptErrors:
		s.pool.Stop()
		return fmt.Errorf("accept loop failed: %w", err)

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		// Closing the listener unblocks Accept; the loop sees net.ErrClosed
		// and exits before the pool drains.
		listener.Close()
		s.pool.Stop()
		if admin != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := admin.Shutdown(ctx); err != nil {
				s.logger.Warn("admin shutdown failed", slog.String("error", err.Error()))
			}
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// acceptLoop hands every accepted socket to the pool. Rejections (full
// queue past the retry budget, or no live worker) close the socket so the
// client sees a reset instead of a hang.
func (s *Server) acceptLoop(listener net.Listener, fatal chan<- error) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", slog.String("error", err.Error()))
			fatal <- err
			return
		}

		if !s.pool.AddWork(conn) {
			metrics.ConnectionsRejected.Inc()
			s.logger.Warn("connection rejected",
				slog.String("peer", conn.RemoteAddr().String()),
			)
			conn.Close()
			continue
		}
		metrics.ConnectionsAccepted.Inc()
	}
}

// startAdmin serves health, stats, maintenance and Prometheus metrics on a
// separate port.
func (s *Server) startAdmin() *http.Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(s.logger))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	router.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"workers":        s.pool.Workers(),
			"queue_depth":    s.pool.QueueDepth(),
			"queue_capacity": s.config.QueueCapacity,
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
		})
	})

	// Maintenance: rebuild the store indexes on demand. Uses a short-lived
	// connection so it never touches a worker's exclusive one.
	router.Post("/reindex", func(w http.ResponseWriter, r *http.Request) {
		conn, err := sqlite.Connect(s.config.DBPath, s.logger)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()
		if err := conn.Reindex(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok\n"))
	})

	router.Handle("/metrics", promhttp.Handler())

	admin := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.AdminPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		s.logger.Info("admin listener started", slog.Int("port", s.config.AdminPort))
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin listener failed", slog.String("error", err.Error()))
		}
	}()
	return admin
}
