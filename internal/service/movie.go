// Package service contains the business logic between the request handler
// and the repository: input validation and the business-event logging around
// each catalog operation.
//
// The service takes repository.MovieRepository (an interface), not a
// concrete store, so tests can pass a mock and the handler never sees SQL.
package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/movie-catalog/internal/apperror"
	"github.com/sakif/movie-catalog/internal/model"
	"github.com/sakif/movie-catalog/internal/repository"
)

// Validation constants.
const (
	MaxTitleLength    = 512
	MaxDirectorLength = 512
	MaxGenreLength    = 128
)

// MovieService validates and dispatches catalog operations. One instance per
// worker, owning that worker's repository connection.
type MovieService struct {
	repo   repository.MovieRepository
	logger *slog.Logger
}

// NewMovieService creates the service around a repository connection.
func NewMovieService(repo repository.MovieRepository, logger *slog.Logger) *MovieService {
	return &MovieService{repo: repo, logger: logger}
}

// checkText validates one free-text field: non-empty, valid UTF-8, bounded.
func checkText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return apperror.Invalid("%s must not be empty", field)
	}
	if len(value) > maxLen {
		return apperror.Invalid("%s is too long (max %d bytes)", field, maxLen)
	}
	if !utf8.ValidString(value) {
		return apperror.Invalid("%s is not valid UTF-8", field)
	}
	return nil
}

// AddMovie validates and registers a new movie, assigning movie.ID.
func (s *MovieService) AddMovie(ctx context.Context, movie *model.Movie) error {
	if err := checkText("title", movie.Title, MaxTitleLength); err != nil {
		return err
	}
	if err := checkText("director", movie.Director, MaxDirectorLength); err != nil {
		return err
	}
	for _, genre := range movie.Genres {
		if err := checkText("genre", genre, MaxGenreLength); err != nil {
			return err
		}
	}

	if err := s.repo.RegisterMovie(ctx, movie); err != nil {
		return err
	}
	s.logger.Info("movie registered",
		slog.Int64("id", movie.ID),
		slog.String("title", movie.Title),
		slog.Int("genres", len(movie.Genres)),
	)
	return nil
}

// AddGenre links one genre to an existing movie.
func (s *MovieService) AddGenre(ctx context.Context, movieID int64, genre string) error {
	if err := checkText("genre", genre, MaxGenreLength); err != nil {
		return err
	}
	if err := s.repo.AddGenres(ctx, movieID, []string{genre}); err != nil {
		return err
	}
	s.logger.Info("genre added",
		slog.Int64("movie_id", movieID),
		slog.String("genre", genre),
	)
	return nil
}

// RemoveMovie deletes a movie and garbage-collects orphaned genres.
func (s *MovieService) RemoveMovie(ctx context.Context, movieID int64) error {
	if err := s.repo.DeleteMovie(ctx, movieID); err != nil {
		return err
	}
	s.logger.Info("movie removed", slog.Int64("id", movieID))
	return nil
}

// GetMovie reads one movie with its genres.
func (s *MovieService) GetMovie(ctx context.Context, movieID int64) (model.Movie, error) {
	return s.repo.GetMovie(ctx, movieID)
}

// ListMovies streams every movie through visit.
func (s *MovieService) ListMovies(ctx context.Context, visit repository.MovieVisitor) error {
	return s.repo.ListMovies(ctx, visit)
}

// SearchByGenre streams every movie carrying genre through visit.
func (s *MovieService) SearchByGenre(ctx context.Context, genre string, visit repository.MovieVisitor) error {
	if err := checkText("genre", genre, MaxGenreLength); err != nil {
		return err
	}
	return s.repo.SearchMoviesByGenre(ctx, genre, visit)
}

// ListSummaries streams the (id, title) projection through visit.
func (s *MovieService) ListSummaries(ctx context.Context, visit repository.SummaryVisitor) error {
	return s.repo.ListSummaries(ctx, visit)
}
