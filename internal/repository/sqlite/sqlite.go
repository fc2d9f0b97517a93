// Package sqlite implements the repository interfaces on an embedded SQLite
// store, using the pure-Go modernc.org/sqlite driver (no CGo, works wherever
// Go works).
//
// Each Conn wraps one exclusive database connection with a cache of prepared
// statements and a reusable record builder. A Conn belongs to exactly one
// worker goroutine; nothing in this package is safe for concurrent use.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/movie-catalog/internal/apperror"
	"github.com/sakif/movie-catalog/internal/model"
	"github.com/sakif/movie-catalog/internal/repository"
)

// Compile-time check that *Conn implements repository.MovieRepository.
var _ repository.MovieRepository = (*Conn)(nil)

// schema creates the three catalog tables. STRICT enforces column types;
// link rows cascade away with their parents; genre names and (movie, genre)
// pairs are unique.
const schema = `
CREATE TABLE IF NOT EXISTS movie(
    id INTEGER PRIMARY KEY ASC AUTOINCREMENT NOT NULL,
    title TEXT NOT NULL,
    director TEXT NOT NULL,
    release_year INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS genre(
    id INTEGER PRIMARY KEY ASC AUTOINCREMENT NOT NULL,
    name TEXT UNIQUE NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS movie_genre(
    movie_id INTEGER NOT NULL,
    genre_id INTEGER NOT NULL,
    FOREIGN KEY (movie_id)
        REFERENCES movie(id)
        ON DELETE CASCADE,
    FOREIGN KEY (genre_id)
        REFERENCES genre(id)
        ON DELETE CASCADE,
    UNIQUE (movie_id, genre_id)
) STRICT;

CREATE UNIQUE INDEX IF NOT EXISTS genre_name ON genre(name);
CREATE INDEX IF NOT EXISTS movie_id_link ON movie_genre(movie_id);
CREATE INDEX IF NOT EXISTS genre_id_link ON movie_genre(genre_id);
`

// open creates a single-connection pool with the pragmas every session needs.
//
// database/sql pools connections by default, but a Conn must own exactly one
// underlying SQLite connection so its prepared statements and transactions
// never migrate; SetMaxOpenConns(1) pins it.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets concurrent workers read while one writes; foreign keys are
	// off by default in SQLite and the schema relies on cascade deletes.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return db, nil
}

// Setup creates the database file at path if absent, applies the schema and
// closes again. Run once at startup before any worker connects.
func Setup(path string) error {
	db, err := open(path)
	if err != nil {
		return apperror.WithKind(kindOf(err), err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return apperror.WithKind(kindOf(err), fmt.Errorf("sqlite: applying schema: %w", err))
	}
	if err := db.Close(); err != nil {
		return apperror.WithKind(kindOf(err), fmt.Errorf("sqlite: closing after setup: %w", err))
	}
	return nil
}

// Conn is one worker's exclusive connection to the store: a pinned SQLite
// connection, every statement prepared up front, and a private Builder reused
// across all records the connection reads.
type Conn struct {
	db      *sql.DB
	logger  *slog.Logger
	builder *model.Builder

	insertMovie        *sql.Stmt
	insertGenre        *sql.Stmt
	linkGenre          *sql.Stmt
	deleteMovie        *sql.Stmt
	deleteUnusedGenres *sql.Stmt
	selectAllTitles    *sql.Stmt
	selectMovie        *sql.Stmt
	selectMovieGenres  *sql.Stmt
	selectAllJoined    *sql.Stmt
	selectByGenre      *sql.Stmt
	reindex            *sql.Stmt
}

// preparer prepares statements in series, remembering the first failure so
// the call sites stay flat.
type preparer struct {
	db  *sql.DB
	err error
}

func (p *preparer) prepare(query string) *sql.Stmt {
	if p.err != nil {
		return nil
	}
	stmt, err := p.db.Prepare(query)
	if err != nil {
		p.err = err
	}
	return stmt
}

// Connect opens the database at path and prepares the statement cache.
// The schema must already exist (see Setup); a missing schema is a hard
// error because the worker cannot serve anything without it.
func Connect(path string, logger *slog.Logger) (*Conn, error) {
	db, err := open(path)
	if err != nil {
		return nil, apperror.Fatal(err)
	}

	var tables int
	err = db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'movie'`,
	).Scan(&tables)
	if err != nil {
		db.Close()
		return nil, apperror.Fatal(fmt.Errorf("sqlite: checking schema: %w", err))
	}
	if tables == 0 {
		db.Close()
		return nil, apperror.Fatal(fmt.Errorf("sqlite: schema missing at %s, run setup first", path))
	}

	p := &preparer{db: db}
	conn := &Conn{
		db:      db,
		logger:  logger,
		builder: model.NewBuilder(),

		insertMovie: p.prepare(`
			INSERT INTO movie(title, director, release_year)
			    VALUES (?, ?, ?)
			    RETURNING movie.id`),
		insertGenre: p.prepare(`
			INSERT OR IGNORE INTO genre(name)
			    VALUES (?)`),
		linkGenre: p.prepare(`
			INSERT INTO movie_genre(movie_id, genre_id)
			    SELECT ?, genre.id
			        FROM genre
			        WHERE genre.name = ?`),
		deleteMovie: p.prepare(`
			DELETE FROM movie
			    WHERE id = ?`),
		deleteUnusedGenres: p.prepare(`
			DELETE FROM genre
			    WHERE id NOT IN (
			        SELECT DISTINCT genre_id
			            FROM movie_genre
			    )`),
		selectAllTitles: p.prepare(`
			SELECT id, title
			    FROM movie`),
		selectMovie: p.prepare(`
			SELECT id, title, director, release_year
			    FROM movie
			    WHERE id = ?`),
		selectMovieGenres: p.prepare(`
			SELECT genre.name
			    FROM genre
			        INNER JOIN movie_genre ON genre.id = genre_id
			    WHERE movie_id = ?
			    ORDER BY movie_genre.rowid`),
		selectAllJoined: p.prepare(`
			SELECT movie.id, movie.title, movie.director, movie.release_year, genre.name
			    FROM movie
			        LEFT JOIN movie_genre ON movie_genre.movie_id = movie.id
			        LEFT JOIN genre ON genre.id = movie_genre.genre_id
			    ORDER BY movie.id, movie_genre.rowid`),
		selectByGenre: p.prepare(`
			SELECT movie.id, movie.title, movie.director, movie.release_year, genre.name
			    FROM movie
			        LEFT JOIN movie_genre ON movie_genre.movie_id = movie.id
			        LEFT JOIN genre ON genre.id = movie_genre.genre_id
			    WHERE movie.id IN (
			        SELECT movie_genre.movie_id
			            FROM movie_genre
			                INNER JOIN genre ON genre.id = movie_genre.genre_id
			            WHERE genre.name = ?
			    )
			    ORDER BY movie.id, movie_genre.rowid`),
		reindex: p.prepare(`REINDEX`),
	}

	if p.err != nil {
		conn.Close()
		return nil, apperror.Fatal(fmt.Errorf("sqlite: preparing statements: %w", p.err))
	}
	return conn, nil
}

// Close finalizes every prepared statement and closes the connection. The
// first error wins, but the connection is torn down regardless.
func (c *Conn) Close() error {
	var first error
	for _, stmt := range []*sql.Stmt{
		c.insertMovie, c.insertGenre, c.linkGenre,
		c.deleteMovie, c.deleteUnusedGenres,
		c.selectAllTitles, c.selectMovie, c.selectMovieGenres,
		c.selectAllJoined, c.selectByGenre, c.reindex,
	} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := c.db.Close(); err != nil && first == nil {
		first = err
	}
	if first != nil {
		return fmt.Errorf("sqlite: closing connection: %w", first)
	}
	return nil
}

// Reindex rebuilds every index on the store. Maintenance only.
func (c *Conn) Reindex() error {
	if _, err := c.reindex.Exec(); err != nil {
		return apperror.WithKind(kindOf(err), fmt.Errorf("sqlite: reindex: %w", err))
	}
	return nil
}
