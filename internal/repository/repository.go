// Package repository defines the storage interfaces for the movie catalog.
//
// Interfaces live here, implementations live in subpackages (sqlite).
// Consumers depend on these interfaces, never on a concrete store, so the
// backend can be swapped without touching the service or handler layers.
package repository

import (
	"context"

	"github.com/sakif/movie-catalog/internal/model"
)

// MovieVisitor is invoked once per result row with a view borrowing the
// connection's builder arena. The view is invalidated by the next row;
// visitors that retain data must Clone it. Returning true stops iteration.
type MovieVisitor func(*model.MovieView) bool

// SummaryVisitor is the summary-projection counterpart of MovieVisitor.
type SummaryVisitor func(*model.SummaryView) bool

// MovieRepository is the catalog's data-access contract. One instance is
// owned by exactly one goroutine at a time.
type MovieRepository interface {
	// RegisterMovie inserts movie (which must have ID == 0), its genres and
	// the links between them in one transaction, assigning movie.ID.
	RegisterMovie(ctx context.Context, movie *model.Movie) error

	// AddGenres links each named genre to an existing movie, creating genres
	// on first reference.
	AddGenres(ctx context.Context, movieID int64, genres []string) error

	// DeleteMovie removes a movie; its genre links cascade and orphaned
	// genres are garbage-collected best-effort.
	DeleteMovie(ctx context.Context, movieID int64) error

	// GetMovie reads a single movie with its genres.
	GetMovie(ctx context.Context, movieID int64) (model.Movie, error)

	// ListMovies streams every movie through visit.
	ListMovies(ctx context.Context, visit MovieVisitor) error

	// SearchMoviesByGenre streams every movie carrying the genre.
	SearchMoviesByGenre(ctx context.Context, genre string, visit MovieVisitor) error

	// ListSummaries streams the (id, title) projection of every movie.
	ListSummaries(ctx context.Context, visit SummaryVisitor) error
}
