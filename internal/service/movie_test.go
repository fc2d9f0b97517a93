package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-catalog/internal/apperror"
	"github.com/sakif/movie-catalog/internal/model"
	"github.com/sakif/movie-catalog/internal/repository"
)

// mockRepo records calls so validation can be tested without a store.
type mockRepo struct {
	registered []model.Movie
	genreCalls int
}

var _ repository.MovieRepository = (*mockRepo)(nil)

func (m *mockRepo) RegisterMovie(_ context.Context, movie *model.Movie) error {
	movie.ID = int64(len(m.registered) + 1)
	m.registered = append(m.registered, *movie)
	return nil
}

func (m *mockRepo) AddGenres(context.Context, int64, []string) error {
	m.genreCalls++
	return nil
}

func (m *mockRepo) DeleteMovie(context.Context, int64) error { return nil }

func (m *mockRepo) GetMovie(context.Context, int64) (model.Movie, error) {
	return model.Movie{}, apperror.NotFound("no movie")
}

func (m *mockRepo) ListMovies(context.Context, repository.MovieVisitor) error { return nil }

func (m *mockRepo) SearchMoviesByGenre(context.Context, string, repository.MovieVisitor) error {
	return nil
}

func (m *mockRepo) ListSummaries(context.Context, repository.SummaryVisitor) error { return nil }

func newTestMovieService(repo repository.MovieRepository) *MovieService {
	return NewMovieService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAddMovieValidation(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestMovieService(repo)
	ctx := context.Background()

	tests := []struct {
		name  string
		movie model.Movie
	}{
		{"empty title", model.Movie{Director: "d", ReleaseYear: 2000}},
		{"blank title", model.Movie{Title: "   ", Director: "d"}},
		{"empty director", model.Movie{Title: "t"}},
		{"empty genre", model.Movie{Title: "t", Director: "d", Genres: []string{""}}},
		{"invalid utf8 title", model.Movie{Title: "bad\xff", Director: "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			movie := tt.movie
			err := svc.AddMovie(ctx, &movie)
			require.Error(t, err)
			assert.Equal(t, apperror.User, apperror.KindOf(err))
		})
	}
	assert.Empty(t, repo.registered, "invalid movies must never reach the repository")
}

func TestAddMoviePassesThrough(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestMovieService(repo)

	movie := model.Movie{Title: "Alien", Director: "Ridley Scott", ReleaseYear: 1979, Genres: []string{"Horror"}}
	require.NoError(t, svc.AddMovie(context.Background(), &movie))
	assert.Equal(t, int64(1), movie.ID)
	require.Len(t, repo.registered, 1)
}

func TestAddGenreValidation(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestMovieService(repo)

	err := svc.AddGenre(context.Background(), 1, "")
	require.Error(t, err)
	assert.Equal(t, apperror.User, apperror.KindOf(err))
	assert.Zero(t, repo.genreCalls)

	require.NoError(t, svc.AddGenre(context.Background(), 1, "Drama"))
	assert.Equal(t, 1, repo.genreCalls)
}

func TestSearchByGenreValidation(t *testing.T) {
	svc := newTestMovieService(&mockRepo{})

	err := svc.SearchByGenre(context.Background(), " ", func(*model.MovieView) bool { return false })
	require.Error(t, err)
	assert.Equal(t, apperror.User, apperror.KindOf(err))
}
