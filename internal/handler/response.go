package handler

// Response framing helpers. Every response unit ends with a blank line;
// list responses are framed as a standalone YAML document between "---" and
// "...". The first write error is latched and all later writes become
// no-ops, so a dead client just drains the rest of the session cheaply.

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sakif/movie-catalog/internal/model"
)

type responseWriter struct {
	w        *bufio.Writer
	writeErr error
}

func newResponseWriter(w io.Writer) *responseWriter {
	return &responseWriter{w: bufio.NewWriter(w)}
}

// err returns the first write error, if any.
func (rw *responseWriter) err() error {
	return rw.writeErr
}

func (rw *responseWriter) printf(format string, args ...any) {
	if rw.writeErr != nil {
		return
	}
	if _, err := fmt.Fprintf(rw.w, format, args...); err != nil {
		rw.writeErr = err
	}
}

func (rw *responseWriter) flush() {
	if rw.writeErr != nil {
		return
	}
	if err := rw.w.Flush(); err != nil {
		rw.writeErr = err
	}
}

func (rw *responseWriter) ack(op string) {
	rw.printf("server: received %s\n", op)
}

func (rw *responseWriter) ackAddMovie(m *model.Movie) {
	rw.printf("server: received ADD_MOVIE: %s (%d), by %s\n", m.Title, m.ReleaseYear, m.Director)
}

func (rw *responseWriter) ackAddGenre(movieID int64, genre string) {
	rw.printf("server: received ADD_GENRE: %s TO id[%d]\n", genre, movieID)
}

func (rw *responseWriter) ackRemoveMovie(movieID int64) {
	rw.printf("server: received REMOVE_MOVIE: id[%d]\n", movieID)
}

func (rw *responseWriter) ackGetMovie(movieID int64) {
	rw.printf("server: received GET_MOVIE: id[%d]\n", movieID)
}

func (rw *responseWriter) ackSearch(genre string) {
	rw.printf("server: received SEARCH_BY_GENRE: %s\n", genre)
}

func (rw *responseWriter) writeOK() {
	rw.printf("server: ok\n\n")
}

func (rw *responseWriter) serverError(msg string) {
	rw.printf("server: %s\n\n", msg)
}

func (rw *responseWriter) parseError(msg string) {
	rw.printf("server: parsing error: %s\n\n", msg)
}

// movie writes a single owned movie as an indented YAML block.
func (rw *responseWriter) movie(m *model.Movie) {
	rw.printf("movie:\n")
	rw.movieFields(m.ID, m.Title, m.Director, m.ReleaseYear, len(m.Genres), false)
	for _, genre := range m.Genres {
		rw.printf("      - %s\n", genre)
	}
	rw.printf("\n")
}

// movieFields writes the scalar fields with the indentation of a standalone
// block or a sequence item.
func (rw *responseWriter) movieFields(id int64, title, director any, year int32, genres int, inList bool) {
	first, rest := "    ", "    "
	if inList {
		first = "  - "
	}
	rw.printf("%sid: %d\n", first, id)
	rw.printf("%stitle: %s\n", rest, title)
	rw.printf("%srelease_year: %d\n", rest, year)
	rw.printf("%sdirector: %s\n", rest, director)
	if genres == 0 {
		rw.printf("%sgenres: []\n", rest)
	} else {
		rw.printf("%sgenres:\n", rest)
	}
}

// movieView writes one borrowed view as a sequence item.
func (rw *responseWriter) movieView(v *model.MovieView, inList bool) {
	rw.movieFields(v.ID, v.Title, v.Director, v.ReleaseYear, len(v.Genres), inList)
	for _, genre := range v.Genres {
		rw.printf("      - %s\n", genre)
	}
	rw.printf("\n")
}

// movieList streams a movie query as a YAML document keyed by key. The rows
// are written as the visitor sees them; a write failure stops iteration.
func (rw *responseWriter) movieList(key string, query func(func(*model.MovieView) bool) error) error {
	rw.printf("---\n%s:\n\n", key)
	err := query(func(v *model.MovieView) bool {
		rw.movieView(v, true)
		return rw.writeErr != nil
	})
	if err != nil {
		return err
	}
	rw.printf("...\n\n")
	return nil
}

// summaryList streams the summary projection as a YAML document.
func (rw *responseWriter) summaryList(query func(func(*model.SummaryView) bool) error) error {
	rw.printf("---\nsummaries:\n")
	err := query(func(v *model.SummaryView) bool {
		rw.printf("  - { id: %d, title: '%s' }\n", v.ID, v.Title)
		return rw.writeErr != nil
	})
	if err != nil {
		return err
	}
	rw.printf("...\n\n")
	return nil
}
