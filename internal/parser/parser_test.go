package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/movie-catalog/internal/model"
)

func parseAll(t *testing.T, input string) []Operation {
	t.Helper()
	p := New(strings.NewReader(input))
	var ops []Operation
	for {
		op := p.NextOp()
		if op.Type == OpDone {
			break
		}
		// Movie and Genre borrow the parser's builder; clone what the
		// assertions will look at after the next NextOp call.
		if op.Type == OpAddMovie {
			op.Movie = cloneView(op.Movie)
		}
		if op.Genre != nil {
			op.Genre = append([]byte(nil), op.Genre...)
		}
		ops = append(ops, op)
		require.Less(t, len(ops), 100, "parser did not terminate")
	}
	return ops
}

func cloneView(v model.MovieView) model.MovieView {
	m := v.Clone()
	out := model.MovieView{
		ID:          m.ID,
		ReleaseYear: m.ReleaseYear,
		Title:       []byte(m.Title),
		Director:    []byte(m.Director),
	}
	for _, g := range m.Genres {
		out.Genres = append(out.Genres, []byte(g))
	}
	return out
}

func TestParseAddMovie(t *testing.T) {
	ops := parseAll(t, `add_movie:
  title: Inception
  director: Christopher Nolan
  release_year: 2010
  genres:
    - Action
    - Sci-Fi
`)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, OpAddMovie, op.Type)
	assert.Equal(t, int64(0), op.Movie.ID)
	assert.Equal(t, "Inception", string(op.Movie.Title))
	assert.Equal(t, "Christopher Nolan", string(op.Movie.Director))
	assert.Equal(t, int32(2010), op.Movie.ReleaseYear)
	require.Len(t, op.Movie.Genres, 2)
	assert.Equal(t, "Action", string(op.Movie.Genres[0]))
	assert.Equal(t, "Sci-Fi", string(op.Movie.Genres[1]))
}

func TestParseAddMovieAliases(t *testing.T) {
	// year for release_year, genre for genres, single scalar genre
	ops := parseAll(t, `add_movie:
  title: Alien
  director: Ridley Scott
  year: 1979
  genre: Horror
`)
	require.Len(t, ops, 1)
	op := ops[0]
	require.Equal(t, OpAddMovie, op.Type)
	assert.Equal(t, int32(1979), op.Movie.ReleaseYear)
	require.Len(t, op.Movie.Genres, 1)
	assert.Equal(t, "Horror", string(op.Movie.Genres[0]))
}

func TestParseAddMovieIgnoresClientID(t *testing.T) {
	ops := parseAll(t, `add_movie:
  id: 77
  title: t
  director: d
  year: 2000
  genres: []
`)
	require.Len(t, ops, 1)
	require.Equal(t, OpAddMovie, ops[0].Type)
	assert.Equal(t, int64(0), ops[0].Movie.ID)
}

func TestParseAddMovieDuplicateKeepsFirst(t *testing.T) {
	ops := parseAll(t, `add_movie:
  title: First
  title: Second
  director: d
  year: 2000
  genres: []
`)
	require.Len(t, ops, 1)
	require.Equal(t, OpAddMovie, ops[0].Type)
	assert.Equal(t, "First", string(ops[0].Movie.Title))
}

// S5: an add_movie missing a required field is a positional parse error and
// the session continues.
func TestParseAddMovieIncomplete(t *testing.T) {
	ops := parseAll(t, `add_movie:
  title: Inception
  release_year: 2010
  genres: [Action]
`)
	require.Len(t, ops, 1)
	assert.Equal(t, OpParseError, ops[0].Type)
	assert.Contains(t, ops[0].Err, " at ")
}

func TestParseCompactOps(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ty    OpType
		id    int64
		genre string
	}{
		{"get scalar", "get_movie: 12", OpGetMovie, 12, ""},
		{"remove scalar", "remove_movie: 42", OpRemoveMovie, 42, ""},
		{"search scalar", "search_by_genre: Noir", OpSearchByGenre, 0, "Noir"},
		{"get mapping", "get_movie: { id: 3 }", OpGetMovie, 3, ""},
		{"add genre mapping", "add_genre: { id: 999999, genre: Noir }", OpAddGenre, 999999, "Noir"},
		{"add genre name alias", "add_genre: { id: 5, name: Drama }", OpAddGenre, 5, "Drama"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := parseAll(t, tt.input)
			require.Len(t, ops, 1)
			op := ops[0]
			require.Equal(t, tt.ty, op.Type, "err: %s", op.Err)
			assert.Equal(t, tt.id, op.MovieID)
			assert.Equal(t, tt.genre, string(op.Genre))
		})
	}
}

func TestParseBareScalarOps(t *testing.T) {
	ops := parseAll(t, "list_summaries")
	require.Len(t, ops, 1)
	assert.Equal(t, OpListSummaries, ops[0].Type)

	ops = parseAll(t, "list_movies")
	require.Len(t, ops, 1)
	assert.Equal(t, OpListMovies, ops[0].Type)
}

func TestParseNumericAliases(t *testing.T) {
	ops := parseAll(t, "4")
	require.Len(t, ops, 1)
	assert.Equal(t, OpListSummaries, ops[0].Type)

	ops = parseAll(t, "5")
	require.Len(t, ops, 1)
	assert.Equal(t, OpListMovies, ops[0].Type)

	ops = parseAll(t, "3: 42")
	require.Len(t, ops, 1)
	assert.Equal(t, OpRemoveMovie, ops[0].Type)
	assert.Equal(t, int64(42), ops[0].MovieID)
}

func TestParseBareScalarNeedsMapping(t *testing.T) {
	ops := parseAll(t, "get_movie")
	require.Len(t, ops, 1)
	assert.Equal(t, OpParseError, ops[0].Type)
	assert.Contains(t, ops[0].Err, "operation requires a dictionary")
}

func TestParseUnknownKey(t *testing.T) {
	ops := parseAll(t, "destroy_everything: now")
	require.Len(t, ops, 1)
	assert.Equal(t, OpParseError, ops[0].Type)
	assert.Contains(t, ops[0].Err, "unrecognized operation key")
}

func TestParseBadInteger(t *testing.T) {
	for _, input := range []string{
		"remove_movie: abc",
		"remove_movie: 12abc",
		"remove_movie: ''",
		"remove_movie: 99999999999999999999999999",
	} {
		ops := parseAll(t, input)
		require.Len(t, ops, 1, "input %q", input)
		assert.Equal(t, OpParseError, ops[0].Type, "input %q", input)
	}

	// full i64 range is accepted
	ops := parseAll(t, "remove_movie: -9223372036854775808")
	require.Len(t, ops, 1)
	require.Equal(t, OpRemoveMovie, ops[0].Type)
	assert.Equal(t, int64(-9223372036854775808), ops[0].MovieID)
}

func TestParseYearOutOfRange(t *testing.T) {
	ops := parseAll(t, `add_movie:
  title: t
  director: d
  year: 99999999999
  genres: []
`)
	require.Len(t, ops, 1)
	assert.Equal(t, OpParseError, ops[0].Type)
	assert.Contains(t, ops[0].Err, "release year out of range")
}

// Several operations in one mapping document come out one per NextOp call,
// in document order.
func TestParseMultipleOpsInOneMapping(t *testing.T) {
	ops := parseAll(t, `add_movie:
  title: t
  director: d
  year: 2000
  genres: [x]
get_movie: 1
remove_movie: 2
`)
	require.Len(t, ops, 3)
	assert.Equal(t, OpAddMovie, ops[0].Type)
	assert.Equal(t, OpGetMovie, ops[1].Type)
	assert.Equal(t, OpRemoveMovie, ops[2].Type)
}

// Operations split into separate YAML documents behave identically.
func TestParseMultipleDocuments(t *testing.T) {
	ops := parseAll(t, "get_movie: 1\n---\nremove_movie: 2\n---\nlist_movies\n")
	require.Len(t, ops, 3)
	assert.Equal(t, OpGetMovie, ops[0].Type)
	assert.Equal(t, OpRemoveMovie, ops[1].Type)
	assert.Equal(t, OpListMovies, ops[2].Type)
}

// Whitespace-only differences must not change the parsed operations.
func TestParseWhitespaceIdempotent(t *testing.T) {
	compact := "add_movie: {title: t, director: d, year: 2000, genres: [a, b]}"
	spread := `add_movie:
    title:     t
    director:  d
    year:      2000
    genres:
      - a
      - b
`
	first := parseAll(t, compact)
	second := parseAll(t, spread)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Type, second[0].Type)
	assert.Equal(t, first[0].Movie.Clone(), second[0].Movie.Clone())
}

// A structurally invalid operation is reported and the next one still parses.
func TestParseRecoversAfterInvalidOp(t *testing.T) {
	ops := parseAll(t, `add_genre: [1, 2]
list_movies:
`)
	require.Len(t, ops, 2)
	assert.Equal(t, OpParseError, ops[0].Type)
	assert.Contains(t, ops[0].Err, "sequence unsupported in this operation")
	assert.Equal(t, OpListMovies, ops[1].Type)
}

// A broken stream reports one error, then the parser stays done.
func TestParseFatalStreamError(t *testing.T) {
	p := New(strings.NewReader("add_movie: [unclosed"))
	op := p.NextOp()
	assert.Equal(t, OpParseError, op.Type)
	assert.NotEmpty(t, op.Err)

	assert.True(t, p.Done())
	assert.Equal(t, OpDone, p.NextOp().Type)
	assert.Equal(t, OpDone, p.NextOp().Type)
}

func TestParseEmptyStream(t *testing.T) {
	p := New(strings.NewReader(""))
	assert.Equal(t, OpDone, p.NextOp().Type)
	assert.True(t, p.Done())
}
