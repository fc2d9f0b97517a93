// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// Movie is the principal entity of the catalog. ID is assigned by the store;
// a zero ID means "not yet registered".
type Movie struct {
	ID          int64    `yaml:"id"`
	Title       string   `yaml:"title"`
	Director    string   `yaml:"director"`
	ReleaseYear int32    `yaml:"release_year"`
	Genres      []string `yaml:"genres"`
}

// MovieSummary is the cheap projection of a Movie used by the listing path.
type MovieSummary struct {
	ID    int64  `yaml:"id"`
	Title string `yaml:"title"`
}

// MovieView is a Movie whose variable-length fields borrow from a Builder
// arena. The byte slices are valid only until the next mutation or Reset of
// the owning Builder; callers who retain them must Clone first.
type MovieView struct {
	ID          int64
	Title       []byte
	Director    []byte
	ReleaseYear int32
	Genres      [][]byte
}

// Clone materializes an owned Movie by copying every borrowed slice.
func (v *MovieView) Clone() Movie {
	m := Movie{
		ID:          v.ID,
		Title:       string(v.Title),
		Director:    string(v.Director),
		ReleaseYear: v.ReleaseYear,
	}
	if len(v.Genres) > 0 {
		m.Genres = make([]string, len(v.Genres))
		for i, g := range v.Genres {
			m.Genres[i] = string(g)
		}
	}
	return m
}

// SummaryView is a MovieSummary borrowing its title from a Builder arena.
type SummaryView struct {
	ID    int64
	Title []byte
}

// Clone materializes an owned MovieSummary.
func (v *SummaryView) Clone() MovieSummary {
	return MovieSummary{ID: v.ID, Title: string(v.Title)}
}
