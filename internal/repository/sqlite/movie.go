package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/movie-catalog/internal/apperror"
	"github.com/sakif/movie-catalog/internal/model"
	"github.com/sakif/movie-catalog/internal/repository"
)

// wrap classifies a driver error and tags it with the failing operation.
func wrap(op string, err error) error {
	return apperror.WithKind(kindOf(err), fmt.Errorf("sqlite: %s: %w", op, err))
}

// finish commits tx on success. On failure it rolls back and returns the
// original error; a rollback that itself fails is promoted to a hard error,
// since the connection state is no longer trustworthy.
func finish(tx *sql.Tx, err error) error {
	if err == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			return wrap("commit", commitErr)
		}
		return nil
	}
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		return apperror.Fatal(fmt.Errorf("sqlite: rollback failed: %v (after %w)", rbErr, err))
	}
	return err
}

// RegisterMovie inserts the movie, its genres and the links between them in
// a single deferred transaction, assigning movie.ID from the insert.
func (c *Conn) RegisterMovie(ctx context.Context, movie *model.Movie) error {
	if movie.ID != 0 {
		return apperror.Invalid("movie id must be unset on registration")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	return finish(tx, c.registerMovieTx(ctx, tx, movie))
}

func (c *Conn) registerMovieTx(ctx context.Context, tx *sql.Tx, movie *model.Movie) error {
	for _, genre := range movie.Genres {
		if _, err := tx.StmtContext(ctx, c.insertGenre).ExecContext(ctx, genre); err != nil {
			return wrap("inserting genre", err)
		}
	}

	// RETURNING id makes the insert yield exactly one row; anything else is
	// an engine fault.
	err := tx.StmtContext(ctx, c.insertMovie).
		QueryRowContext(ctx, movie.Title, movie.Director, movie.ReleaseYear).
		Scan(&movie.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.Fatal(fmt.Errorf("sqlite: insert returned no generated id"))
	}
	if err != nil {
		return wrap("inserting movie", err)
	}

	for _, genre := range movie.Genres {
		if _, err := tx.StmtContext(ctx, c.linkGenre).ExecContext(ctx, movie.ID, genre); err != nil {
			return wrap("linking genre", err)
		}
	}
	return nil
}

// AddGenres links each named genre to an existing movie inside one
// transaction, creating genres on first reference. Foreign-key and unique
// violations are translated into the catalog's client-facing messages.
func (c *Conn) AddGenres(ctx context.Context, movieID int64, genres []string) error {
	if len(genres) == 0 {
		return apperror.Invalid("empty list of genres to add, operation ignored")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	return finish(tx, c.addGenresTx(ctx, tx, movieID, genres))
}

func (c *Conn) addGenresTx(ctx context.Context, tx *sql.Tx, movieID int64, genres []string) error {
	for _, genre := range genres {
		if _, err := tx.StmtContext(ctx, c.insertGenre).ExecContext(ctx, genre); err != nil {
			return wrap("inserting genre", err)
		}
	}
	for _, genre := range genres {
		_, err := tx.StmtContext(ctx, c.linkGenre).ExecContext(ctx, movieID, genre)
		if err == nil {
			continue
		}
		if code, ok := resultCode(err); ok {
			switch code {
			case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
				return apperror.NotFound("no movie with id = %d found in the database", movieID)
			case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
				return apperror.Conflict("movie with id = %d already has the provided genre", movieID)
			}
		}
		return wrap("linking genre", err)
	}
	return nil
}

// DeleteMovie removes the movie; link rows cascade away with it. Orphaned
// genres are then garbage-collected best-effort: a GC failure is logged, not
// surfaced, because the deletion itself already succeeded.
func (c *Conn) DeleteMovie(ctx context.Context, movieID int64) error {
	res, err := c.deleteMovie.ExecContext(ctx, movieID)
	if err != nil {
		return wrap("deleting movie", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrap("checking rows affected", err)
	}
	if affected == 0 {
		return apperror.NotFound("no movie with id = %d to be deleted from the database", movieID)
	}

	if _, err := c.deleteUnusedGenres.ExecContext(ctx); err != nil {
		c.logger.Warn("orphan genre collection failed",
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// GetMovie reads one movie and its genres under a read transaction, so the
// genre list matches the row even while other workers write.
func (c *Conn) GetMovie(ctx context.Context, movieID int64) (model.Movie, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Movie{}, wrap("begin", err)
	}

	movie, err := c.getMovieTx(ctx, tx, movieID)
	if err := finish(tx, err); err != nil {
		return model.Movie{}, err
	}
	return movie, nil
}

func (c *Conn) getMovieTx(ctx context.Context, tx *sql.Tx, movieID int64) (model.Movie, error) {
	b := c.builder
	b.Reset()

	var (
		id              int64
		title, director []byte
		year            int32
	)
	err := tx.StmtContext(ctx, c.selectMovie).QueryRowContext(ctx, movieID).
		Scan(&id, &title, &director, &year)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Movie{}, apperror.NotFound("no movie with id = %d found in the database", movieID)
	}
	if err != nil {
		return model.Movie{}, wrap("selecting movie", err)
	}

	if err := buildScalars(b, id, title, director, year); err != nil {
		return model.Movie{}, wrap("assembling movie", err)
	}

	rows, err := tx.StmtContext(ctx, c.selectMovieGenres).QueryContext(ctx, movieID)
	if err != nil {
		return model.Movie{}, wrap("selecting genres", err)
	}
	for rows.Next() {
		var genre sql.RawBytes
		if err := rows.Scan(&genre); err != nil {
			rows.Close()
			return model.Movie{}, wrap("scanning genre", err)
		}
		if err := b.AddGenre(genre); err != nil {
			rows.Close()
			return model.Movie{}, wrap("assembling genres", err)
		}
	}
	if err := closeRows(rows); err != nil {
		return model.Movie{}, err
	}

	var view model.MovieView
	if err := b.CurrentMovie(&view); err != nil {
		return model.Movie{}, wrap("assembling movie", err)
	}
	return view.Clone(), nil
}

// ListMovies streams every movie with its genres through visit.
func (c *Conn) ListMovies(ctx context.Context, visit repository.MovieVisitor) error {
	return c.iterJoined(ctx, "listing movies", c.selectAllJoined, nil, visit)
}

// SearchMoviesByGenre streams every movie carrying the genre through visit.
func (c *Conn) SearchMoviesByGenre(ctx context.Context, genre string, visit repository.MovieVisitor) error {
	return c.iterJoined(ctx, "searching movies", c.selectByGenre, []any{genre}, visit)
}

// iterJoined drives one of the joined movie×genre selects: rows arrive
// ordered by movie id with one row per (movie, genre) pair (genre NULL for
// movies without one), and consecutive rows for the same movie are folded
// into a single builder record before the visitor sees it.
//
// The builder is reused for every record, so the view handed to visit is
// invalidated by the next row.
func (c *Conn) iterJoined(ctx context.Context, op string, stmt *sql.Stmt, args []any, visit repository.MovieVisitor) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	return finish(tx, c.iterJoinedTx(ctx, tx, op, stmt, args, visit))
}

func (c *Conn) iterJoinedTx(ctx context.Context, tx *sql.Tx, op string, stmt *sql.Stmt, args []any, visit repository.MovieVisitor) error {
	rows, err := tx.StmtContext(ctx, stmt).QueryContext(ctx, args...)
	if err != nil {
		return wrap(op, err)
	}

	b := c.builder
	b.Reset()

	var (
		view      model.MovieView
		currentID int64
		started   bool
	)
	for rows.Next() {
		var (
			id              int64
			title, director sql.RawBytes
			year            int32
			genre           sql.RawBytes
		)
		if err := rows.Scan(&id, &title, &director, &year, &genre); err != nil {
			rows.Close()
			return wrap("scanning row", err)
		}

		if started && id != currentID {
			if err := b.CurrentMovie(&view); err != nil {
				rows.Close()
				return wrap("assembling movie", err)
			}
			if visit(&view) {
				return closeRows(rows)
			}
			b.Reset()
			started = false
		}

		if !started {
			if err := buildScalars(b, id, title, director, year); err != nil {
				rows.Close()
				return wrap("assembling movie", err)
			}
			currentID = id
			started = true
		}

		// NULL genre scans as a nil RawBytes: a movie without genres.
		if genre != nil {
			if err := b.AddGenre(genre); err != nil {
				rows.Close()
				return wrap("assembling genres", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return wrap("iterating rows", err)
	}
	if err := closeRows(rows); err != nil {
		return err
	}

	if started {
		if err := b.CurrentMovie(&view); err != nil {
			return wrap("assembling movie", err)
		}
		visit(&view)
	}
	return nil
}

// ListSummaries streams the (id, title) projection of every movie.
func (c *Conn) ListSummaries(ctx context.Context, visit repository.SummaryVisitor) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin", err)
	}
	return finish(tx, c.listSummariesTx(ctx, tx, visit))
}

func (c *Conn) listSummariesTx(ctx context.Context, tx *sql.Tx, visit repository.SummaryVisitor) error {
	rows, err := tx.StmtContext(ctx, c.selectAllTitles).QueryContext(ctx)
	if err != nil {
		return wrap("listing summaries", err)
	}

	b := c.builder
	var view model.SummaryView
	for rows.Next() {
		var (
			id    int64
			title sql.RawBytes
		)
		if err := rows.Scan(&id, &title); err != nil {
			rows.Close()
			return wrap("scanning summary", err)
		}

		b.Reset()
		if err := b.SetID(id); err != nil {
			rows.Close()
			return wrap("assembling summary", err)
		}
		if err := b.SetTitle(title); err != nil {
			rows.Close()
			return wrap("assembling summary", err)
		}
		if err := b.CurrentSummary(&view); err != nil {
			rows.Close()
			return wrap("assembling summary", err)
		}
		if visit(&view) {
			return closeRows(rows)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return wrap("iterating summaries", err)
	}
	return closeRows(rows)
}

// buildScalars resets nothing; it loads one row's scalar columns into the
// builder and opens the genre region.
func buildScalars(b *model.Builder, id int64, title, director []byte, year int32) error {
	if err := b.SetID(id); err != nil {
		return err
	}
	if err := b.SetTitle(title); err != nil {
		return err
	}
	if err := b.SetDirector(director); err != nil {
		return err
	}
	if err := b.SetReleaseYear(year); err != nil {
		return err
	}
	return b.StartGenres()
}

// closeRows is the database/sql analogue of the statement-reset rule: if the
// cursor cannot be returned to idle, the worker must not keep using this
// connection.
func closeRows(rows *sql.Rows) error {
	if err := rows.Close(); err != nil {
		return apperror.Fatal(fmt.Errorf("sqlite: resetting statement: %w", err))
	}
	return nil
}
