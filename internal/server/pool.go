package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync/atomic"

	"github.com/sakif/movie-catalog/internal/handler"
	"github.com/sakif/movie-catalog/internal/metrics"
	"github.com/sakif/movie-catalog/internal/repository/sqlite"
	"github.com/sakif/movie-catalog/internal/service"
	"github.com/sakif/movie-catalog/internal/workqueue"
)

// worker is one serving goroutine. The accept loop probes liveness through
// the done channel, which the goroutine closes on any exit path; finished is
// the cooperative stop flag, writable by the pool and readable on the
// worker's hot loop.
type worker struct {
	id       uint64
	finished atomic.Bool
	done     chan struct{}
}

// Pool runs the fixed set of worker goroutines behind the shared work queue.
// Each worker owns a private store connection for its whole lifetime.
//
// AddWork and the respawn path must be called only from the accept loop:
// the queue is single-producer and the worker slots are not locked.
type Pool struct {
	cfg     Config
	logger  *slog.Logger
	handler *handler.Handler

	queue   *workqueue.Queue[net.Conn]
	workers []*worker
	nextID  atomic.Uint64

	shutdown atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPool creates the queue and the worker slots; no goroutine starts until
// Start.
func NewPool(cfg Config, logger *slog.Logger, h *handler.Handler) (*Pool, error) {
	queue, err := workqueue.New[net.Conn](cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("creating work queue: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:     cfg,
		logger:  logger,
		handler: h,
		queue:   queue,
		workers: make([]*worker, cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start spawns every worker.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool",
		slog.Int("workers", p.cfg.Workers),
		slog.Int("queue_capacity", p.queue.Cap()),
	)
	for i := range p.workers {
		p.spawn(i)
	}
}

func (p *Pool) spawn(slot int) {
	w := &worker{
		id:   p.nextID.Add(1),
		done: make(chan struct{}),
	}
	p.workers[slot] = w
	go p.run(w)
}

// run is the worker loop: own a store connection, claim sockets, serve
// sessions. It exits on the finished flag, on a hard failure (the connection
// can no longer be trusted) and on failure to connect; the accept loop
// respawns a dead worker unless shutdown has been requested.
func (p *Pool) run(w *worker) {
	defer close(w.done)

	logger := p.logger.With(slog.Uint64("worker", w.id))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", slog.Any("panic", r))
		}
	}()

	conn, err := sqlite.Connect(p.cfg.DBPath, logger)
	if err != nil {
		logger.Error("worker could not connect to store", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("closing store connection", slog.String("error", err.Error()))
		}
	}()

	svc := service.NewMovieService(conn, logger)

	for !w.finished.Load() {
		sock, ok := p.queue.Pop()
		if !ok {
			p.queue.WaitNotEmpty(&w.finished)
			continue
		}

		if hardFail := p.handler.Handle(p.ctx, sock, svc); hardFail {
			logger.Error("worker exiting after hard failure")
			return
		}
	}
	logger.Info("worker stopped")
}

// respawnDead probes every worker slot and restarts the dead ones. Returns
// false only when no worker slot could be kept alive.
func (p *Pool) respawnDead() bool {
	alive := 0
	for i, w := range p.workers {
		select {
		case <-w.done:
			if p.shutdown.Load() {
				continue
			}
			metrics.WorkerRestarts.Inc()
			p.logger.Warn("respawning dead worker", slog.Uint64("worker", w.id))
			p.spawn(i)
			alive++
		default:
			alive++
		}
	}
	return alive > 0
}

// AddWork hands an accepted socket to the pool. On a full queue it yields
// and retries up to the configured budget; false means the caller must close
// the socket.
func (p *Pool) AddWork(conn net.Conn) bool {
	for retries := p.cfg.MaxEnqueueRetries; retries > 0 && !p.shutdown.Load(); retries-- {
		if !p.respawnDead() {
			return false
		}
		if p.queue.Push(conn) {
			metrics.QueueDepth.Set(float64(p.queue.Len()))
			return true
		}
		runtime.Gosched()
	}
	return false
}

// QueueDepth reports the current queue size.
func (p *Pool) QueueDepth() int {
	return p.queue.Len()
}

// Workers reports the configured pool size.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// Stop flags every worker, wakes the blocked ones, joins them and closes any
// socket still waiting in the queue.
func (p *Pool) Stop() {
	p.logger.Info("stopping worker pool")
	p.shutdown.Store(true)
	p.cancel()
	for _, w := range p.workers {
		w.finished.Store(true)
	}
	p.queue.Wake()
	for _, w := range p.workers {
		<-w.done
	}
	p.queue.Drain(func(conn net.Conn) {
		conn.Close()
	})
	p.logger.Info("worker pool stopped")
}
