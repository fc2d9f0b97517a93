package model

import "errors"

// Arena growth step. Strings are packed into page-sized allocations so that
// assembling one record does not allocate per field.
const arenaPageSize = 4096

// Growth step for the completed-record list.
const listCapacityStep = 128

var (
	// ErrArenaOverflow is returned when a requested slice would overflow the
	// arena size arithmetic. The builder is left unchanged.
	ErrArenaOverflow = errors.New("model: arena size overflow")

	// ErrFieldSet is returned when a field is assigned twice between resets.
	ErrFieldSet = errors.New("model: field already set")

	// ErrIncomplete is returned when a record is taken before every required
	// field has been set.
	ErrIncomplete = errors.New("model: record incomplete")

	// ErrNoGenreList is returned by AddGenre before StartGenres.
	ErrNoGenreList = errors.New("model: genre list not started")
)

// span addresses one string inside the arena.
type span struct {
	off, len int
}

// record holds the offsets and scalar fields of one assembled Movie or
// MovieSummary.
type record struct {
	id          int64
	title       span
	director    span
	releaseYear int32
	genreStart  int // index into Builder.genreSpans
	genreCount  int
}

// Builder assembles Movie and MovieSummary records one at a time, reusing a
// single byte arena across records so that steady-state assembly performs no
// per-record allocation.
//
// The builder hands out borrowed views (MovieView, SummaryView) whose byte
// slices point into the arena. A borrow stays valid until the next mutation
// or Reset; callers who need the data past that window must Clone it.
//
// A Builder is not safe for concurrent use. Each store connection and each
// parser owns a private one.
type Builder struct {
	arena      []byte
	genreSpans []span

	current record

	hasID          bool
	hasTitle       bool
	hasDirector    bool
	hasReleaseYear bool
	hasGenres      bool

	list []record
}

// NewBuilder returns a Builder with one arena page pre-allocated.
func NewBuilder() *Builder {
	return &Builder{
		arena:      make([]byte, 0, arenaPageSize),
		genreSpans: make([]span, 0, 8),
	}
}

// Reset discards the current record, the record list and all arena contents.
// Every previously returned view is invalidated.
func (b *Builder) Reset() {
	b.arena = b.arena[:0]
	b.genreSpans = b.genreSpans[:0]
	b.list = b.list[:0]
	b.current = record{}
	b.clearFlags()
}

func (b *Builder) clearFlags() {
	b.hasID = false
	b.hasTitle = false
	b.hasDirector = false
	b.hasReleaseYear = false
	b.hasGenres = false
}

// grow reserves n more bytes in the arena and returns the offset of the new
// region. On overflow the arena is unchanged.
func (b *Builder) grow(n int) (int, error) {
	off := len(b.arena)
	need := off + n
	if n < 0 || need < off {
		return 0, ErrArenaOverflow
	}
	if need <= cap(b.arena) {
		b.arena = b.arena[:need]
		return off, nil
	}

	pages := 1 + (need-1)/arenaPageSize
	if pages > (1<<62)/arenaPageSize {
		return 0, ErrArenaOverflow
	}
	buf := make([]byte, need, pages*arenaPageSize)
	copy(buf, b.arena)
	b.arena = buf
	return off, nil
}

// addString copies s into the arena and records where it landed.
func (b *Builder) addString(s []byte) (span, error) {
	off, err := b.grow(len(s))
	if err != nil {
		return span{}, err
	}
	copy(b.arena[off:], s)
	return span{off: off, len: len(s)}, nil
}

func (b *Builder) str(sp span) []byte {
	return b.arena[sp.off : sp.off+sp.len : sp.off+sp.len]
}

// SetID assigns the id of the current record. At most once per record.
func (b *Builder) SetID(id int64) error {
	if b.hasID {
		return ErrFieldSet
	}
	b.current.id = id
	b.hasID = true
	return nil
}

// SetReleaseYear assigns the release year of the current record.
func (b *Builder) SetReleaseYear(year int32) error {
	if b.hasReleaseYear {
		return ErrFieldSet
	}
	b.current.releaseYear = year
	b.hasReleaseYear = true
	return nil
}

// SetTitle copies title into the arena as the current record's title.
func (b *Builder) SetTitle(title []byte) error {
	if b.hasTitle {
		return ErrFieldSet
	}
	sp, err := b.addString(title)
	if err != nil {
		return err
	}
	b.current.title = sp
	b.hasTitle = true
	return nil
}

// SetDirector copies director into the arena as the current record's director.
func (b *Builder) SetDirector(director []byte) error {
	if b.hasDirector {
		return ErrFieldSet
	}
	sp, err := b.addString(director)
	if err != nil {
		return err
	}
	b.current.director = sp
	b.hasDirector = true
	return nil
}

// StartGenres marks the beginning of the current record's genre region.
// Subsequent AddGenre calls append to it.
func (b *Builder) StartGenres() error {
	if b.hasGenres {
		return ErrFieldSet
	}
	b.current.genreStart = len(b.genreSpans)
	b.current.genreCount = 0
	b.hasGenres = true
	return nil
}

// AddGenre copies one genre name into the arena and appends it to the current
// record's genre list.
func (b *Builder) AddGenre(genre []byte) error {
	if !b.hasGenres {
		return ErrNoGenreList
	}
	sp, err := b.addString(genre)
	if err != nil {
		return err
	}
	b.genreSpans = append(b.genreSpans, sp)
	b.current.genreCount++
	return nil
}

// HasID reports whether the current record's id was set.
func (b *Builder) HasID() bool { return b.hasID }

// HasTitle reports whether the current record's title was set.
func (b *Builder) HasTitle() bool { return b.hasTitle }

// HasDirector reports whether the current record's director was set.
func (b *Builder) HasDirector() bool { return b.hasDirector }

// HasReleaseYear reports whether the current record's release year was set.
func (b *Builder) HasReleaseYear() bool { return b.hasReleaseYear }

// HasGenres reports whether the current record's genre list was started.
func (b *Builder) HasGenres() bool { return b.hasGenres }

// fillMovie points v at the arena slices of rec, reusing v.Genres capacity.
func (b *Builder) fillMovie(rec record, v *MovieView) {
	v.ID = rec.id
	v.Title = b.str(rec.title)
	v.Director = b.str(rec.director)
	v.ReleaseYear = rec.releaseYear
	v.Genres = v.Genres[:0]
	for _, sp := range b.genreSpans[rec.genreStart : rec.genreStart+rec.genreCount] {
		v.Genres = append(v.Genres, b.str(sp))
	}
}

// CurrentMovie fills v with a borrow of the current record. All five fields
// must have been set.
func (b *Builder) CurrentMovie(v *MovieView) error {
	if !(b.hasID && b.hasTitle && b.hasDirector && b.hasReleaseYear && b.hasGenres) {
		return ErrIncomplete
	}
	b.fillMovie(b.current, v)
	return nil
}

// CurrentSummary fills v with a borrow of the current record's id and title.
func (b *Builder) CurrentSummary(v *SummaryView) error {
	if !(b.hasID && b.hasTitle) {
		return ErrIncomplete
	}
	v.ID = b.current.id
	v.Title = b.str(b.current.title)
	return nil
}

// addToList pushes rec and clears the has-flags so a new record can be
// assembled in the same arena.
func (b *Builder) addToList(rec record) {
	if len(b.list) == cap(b.list) {
		grown := make([]record, len(b.list), cap(b.list)+listCapacityStep)
		copy(grown, b.list)
		b.list = grown
	}
	b.list = append(b.list, rec)
	b.clearFlags()
}

// AddCurrentToListAsMovie appends the current record to the list as a full
// Movie. All five fields must have been set.
func (b *Builder) AddCurrentToListAsMovie() error {
	if !(b.hasID && b.hasTitle && b.hasDirector && b.hasReleaseYear && b.hasGenres) {
		return ErrIncomplete
	}
	b.addToList(b.current)
	return nil
}

// AddCurrentToListAsSummary appends the current record to the list as a
// MovieSummary.
func (b *Builder) AddCurrentToListAsSummary() error {
	if !(b.hasID && b.hasTitle) {
		return ErrIncomplete
	}
	b.addToList(record{id: b.current.id, title: b.current.title})
	return nil
}

// ListLen reports how many completed records are in the list.
func (b *Builder) ListLen() int { return len(b.list) }

// TakeMovieList materializes the record list as owned Movies, duplicating
// every arena slice. The builder is reusable again after Reset.
func (b *Builder) TakeMovieList() []Movie {
	out := make([]Movie, len(b.list))
	var v MovieView
	for i, rec := range b.list {
		b.fillMovie(rec, &v)
		out[i] = v.Clone()
	}
	return out
}

// TakeSummaryList materializes the record list as owned MovieSummaries.
func (b *Builder) TakeSummaryList() []MovieSummary {
	out := make([]MovieSummary, len(b.list))
	for i, rec := range b.list {
		out[i] = MovieSummary{ID: rec.id, Title: string(b.str(rec.title))}
	}
	return out
}
