package server

import (
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-catalog/internal/handler"
	"github.com/sakif/movie-catalog/internal/repository/sqlite"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movies.db")
	require.NoError(t, sqlite.Setup(path))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{
		DBPath:            path,
		Workers:           workers,
		QueueCapacity:     16,
		MaxEnqueueRetries: 100,
		ClientTimeout:     5 * time.Second,
	}
	pool, err := NewPool(cfg, logger, handler.New(logger, cfg.ClientTimeout))
	require.NoError(t, err)
	return pool
}

// tcpPair returns a connected client/server socket pair.
func tcpPair(t *testing.T) (client *net.TCPConn, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, ok := <-accepted
	require.True(t, ok)

	client = dialed.(*net.TCPConn)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// Idle workers blocked on the queue must all exit promptly on Stop.
func TestPoolShutdownLiveness(t *testing.T) {
	pool := newTestPool(t, 4)
	pool.Start()

	// give the workers time to connect and block on the empty queue
	time.Sleep(200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop with idle workers")
	}
}

// A session dispatched through the queue is served end to end by a worker.
func TestPoolServesSession(t *testing.T) {
	pool := newTestPool(t, 2)
	pool.Start()
	defer pool.Stop()

	client, server := tcpPair(t)
	require.True(t, pool.AddWork(server))

	_, err := client.Write([]byte("list_summaries\n"))
	require.NoError(t, err)
	require.NoError(t, client.CloseWrite())

	raw, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "---\nsummaries:\n")
	assert.Contains(t, string(raw), "...\n")
}

// Two concurrent clients each register a movie; both get distinct ids and
// neither response interleaves with the other.
func TestPoolConcurrentSessions(t *testing.T) {
	pool := newTestPool(t, 2)
	pool.Start()
	defer pool.Stop()

	// enqueue both sessions from this goroutine: the queue is single-producer
	clientA, serverA := tcpPair(t)
	clientB, serverB := tcpPair(t)
	require.True(t, pool.AddWork(serverA))
	require.True(t, pool.AddWork(serverB))

	type result struct {
		response string
		err      error
	}
	run := func(client *net.TCPConn, title string, out chan<- result) {
		doc := "add_movie: {title: " + title + ", director: D, year: 2000, genres: [G]}\n"
		if _, err := client.Write([]byte(doc)); err != nil {
			out <- result{err: err}
			return
		}
		if err := client.CloseWrite(); err != nil {
			out <- result{err: err}
			return
		}
		raw, err := io.ReadAll(client)
		out <- result{response: string(raw), err: err}
	}

	first := make(chan result, 1)
	second := make(chan result, 1)
	go run(clientA, "Left", first)
	go run(clientB, "Right", second)

	a, b := <-first, <-second
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Contains(t, a.response, "ADD_MOVIE: Left")
	assert.Contains(t, a.response, "server: ok\n\n")
	assert.NotContains(t, a.response, "Right")
	assert.Contains(t, b.response, "ADD_MOVIE: Right")
	assert.Contains(t, b.response, "server: ok\n\n")
	assert.NotContains(t, b.response, "Left")
}

// AddWork refuses new sockets once shutdown has been requested.
func TestPoolRejectsAfterShutdown(t *testing.T) {
	pool := newTestPool(t, 1)
	pool.Start()
	pool.Stop()

	_, server := tcpPair(t)
	assert.False(t, pool.AddWork(server))
}
