// Package handler drives one client session: it reads operations off the
// socket through the YAML parser, dispatches them to the movie service and
// writes the framed responses back.
package handler

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/movie-catalog/internal/apperror"
	"github.com/sakif/movie-catalog/internal/metrics"
	"github.com/sakif/movie-catalog/internal/model"
	"github.com/sakif/movie-catalog/internal/parser"
	"github.com/sakif/movie-catalog/internal/service"
)

// Handler holds the per-session configuration shared by all workers.
type Handler struct {
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Handler. timeout bounds every socket read and write; zero
// disables deadlines.
func New(logger *slog.Logger, timeout time.Duration) *Handler {
	return &Handler{logger: logger, timeout: timeout}
}

// deadlineConn refreshes the read/write deadline before every socket
// operation, so a stalled client surfaces as a timeout instead of blocking
// the worker forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.timeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Write(p)
}

// Handle serves one client session and closes the socket before returning.
// The returned flag reports a hard failure: the worker must discard its
// store connection and exit.
func (h *Handler) Handle(ctx context.Context, conn net.Conn, svc *service.MovieService) (hardFail bool) {
	defer conn.Close()

	logger := h.logger.With(
		slog.String("session", xid.New().String()),
		slog.String("peer", conn.RemoteAddr().String()),
	)
	logger.Info("session started")

	sock := &deadlineConn{Conn: conn, timeout: h.timeout}
	w := newResponseWriter(sock)
	p := parser.New(sock)

	for !p.Done() && !hardFail && w.err() == nil {
		op := p.NextOp()
		if op.Type == parser.OpDone {
			break
		}
		metrics.Operations.WithLabelValues(op.Type.String()).Inc()

		err := h.dispatch(ctx, w, svc, op)
		kind := apperror.KindOf(err)
		switch kind {
		case apperror.Success:
		case apperror.Hard:
			hardFail = true
			fallthrough
		default:
			metrics.Errors.WithLabelValues(kind.String()).Inc()
			w.serverError(err.Error())
			logger.Error("operation failed",
				slog.String("op", op.Type.String()),
				slog.String("kind", kind.String()),
				slog.String("error", err.Error()),
			)
		}
		w.flush()
	}

	if err := w.err(); err != nil {
		// A dead client socket ends the session; it is not a server fault.
		logger.Info("session ended by write error", slog.String("error", err.Error()))
	}
	logger.Info("session finished", slog.Bool("hard_fail", hardFail))
	return hardFail
}

// dispatch runs one operation and writes its success payload. Errors are
// returned for the caller to classify and report.
func (h *Handler) dispatch(ctx context.Context, w *responseWriter, svc *service.MovieService, op parser.Operation) error {
	switch op.Type {
	case parser.OpParseError:
		w.parseError(op.Err)
		return nil

	case parser.OpAddMovie:
		// The view borrows the parser's builder; copy before the next parse
		// step can invalidate it.
		movie := op.Movie.Clone()
		w.ackAddMovie(&movie)
		if err := svc.AddMovie(ctx, &movie); err != nil {
			return err
		}
		w.writeOK()
		return nil

	case parser.OpAddGenre:
		genre := string(op.Genre)
		w.ackAddGenre(op.MovieID, genre)
		if err := svc.AddGenre(ctx, op.MovieID, genre); err != nil {
			return err
		}
		w.writeOK()
		return nil

	case parser.OpRemoveMovie:
		w.ackRemoveMovie(op.MovieID)
		if err := svc.RemoveMovie(ctx, op.MovieID); err != nil {
			return err
		}
		w.writeOK()
		return nil

	case parser.OpGetMovie:
		w.ackGetMovie(op.MovieID)
		movie, err := svc.GetMovie(ctx, op.MovieID)
		if err != nil {
			return err
		}
		w.movie(&movie)
		return nil

	case parser.OpListMovies:
		w.ack("LIST_MOVIES")
		return w.movieList("movies", func(visit func(*model.MovieView) bool) error {
			return svc.ListMovies(ctx, visit)
		})

	case parser.OpSearchByGenre:
		genre := string(op.Genre)
		w.ackSearch(genre)
		return w.movieList("selected_movies", func(visit func(*model.MovieView) bool) error {
			return svc.SearchByGenre(ctx, genre, visit)
		})

	case parser.OpListSummaries:
		w.ack("LIST_SUMMARIES")
		return w.summaryList(func(visit func(*model.SummaryView) bool) error {
			return svc.ListSummaries(ctx, visit)
		})

	default:
		w.serverError("unexpected error")
		return nil
	}
}
