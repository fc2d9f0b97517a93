// Package parser turns a YAML byte stream from a client socket into a
// sequence of catalog operations.
//
// The stream is read incrementally, one document at a time, through
// yaml.Decoder; whole requests are never buffered. Structural problems
// inside a single operation are reported as OpParseError and the stream
// keeps going; only stream exhaustion and transport failures are terminal.
package parser

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sakif/movie-catalog/internal/model"
)

// OpType tags one parsed operation.
type OpType uint8

const (
	OpParseError OpType = iota
	OpAddMovie
	OpAddGenre
	OpRemoveMovie
	OpListSummaries
	OpListMovies
	OpGetMovie
	OpSearchByGenre
	OpDone
)

// String returns the wire name of the operation type.
func (t OpType) String() string {
	switch t {
	case OpAddMovie:
		return "add_movie"
	case OpAddGenre:
		return "add_genre"
	case OpRemoveMovie:
		return "remove_movie"
	case OpListSummaries:
		return "list_summaries"
	case OpListMovies:
		return "list_movies"
	case OpGetMovie:
		return "get_movie"
	case OpSearchByGenre:
		return "search_by_genre"
	case OpParseError:
		return "parse_error"
	case OpDone:
		return "done"
	default:
		return fmt.Sprintf("op(%d)", uint8(t))
	}
}

// Operation is one parsed request. The Movie and Genre fields borrow from
// the parser's builder and stay valid only until the next NextOp call;
// callers that retain them must copy first.
type Operation struct {
	Type    OpType
	Movie   model.MovieView // OpAddMovie
	MovieID int64           // OpAddGenre, OpRemoveMovie, OpGetMovie
	Genre   []byte          // OpAddGenre, OpSearchByGenre
	Err     string          // OpParseError: "<problem> at <line>:<col>", or the decoder's message for a broken stream
}

// pair is one pending key/value entry of the current document mapping.
// A mapping with several operation keys yields one Operation per NextOp call.
type pair struct {
	key, value *yaml.Node
}

// Parser owns the decode state for one client session.
type Parser struct {
	dec     *yaml.Decoder
	builder *model.Builder
	pending []pair
	done    bool
}

// New returns a Parser reading YAML documents from r.
func New(r io.Reader) *Parser {
	return &Parser{
		dec:     yaml.NewDecoder(r),
		builder: model.NewBuilder(),
	}
}

// Done reports whether the stream is exhausted. Once true, NextOp keeps
// returning OpDone.
func (p *Parser) Done() bool {
	return p.done
}

// NextOp reads and returns the next operation from the stream.
func (p *Parser) NextOp() Operation {
	for !p.done {
		if len(p.pending) > 0 {
			item := p.pending[0]
			p.pending = p.pending[1:]
			return p.parsePair(item.key, item.value)
		}

		var doc yaml.Node
		err := p.dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			p.done = true
			return Operation{Type: OpDone}
		}
		if err != nil {
			// A broken stream cannot be resynchronized; report once, then
			// every later call sees OpDone.
			p.done = true
			return Operation{Type: OpParseError, Err: problemText(err)}
		}

		root := &doc
		if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
			root = doc.Content[0]
		}
		root = deref(root)

		switch root.Kind {
		case yaml.ScalarNode:
			return p.parseBareScalar(root)
		case yaml.MappingNode:
			for i := 0; i+1 < len(root.Content); i += 2 {
				p.pending = append(p.pending, pair{root.Content[i], root.Content[i+1]})
			}
		case 0:
			// empty document
		default:
			return p.invalid(root, "operation requires a scalar key or a mapping")
		}
	}
	return Operation{Type: OpDone}
}

// problemText normalizes a yaml.v3 error into the client-facing problem
// string. The library prefixes everything with "yaml: ".
func problemText(err error) string {
	return strings.TrimPrefix(err.Error(), "yaml: ")
}

// deref resolves anchors so sub-parsers only ever see concrete nodes.
func deref(node *yaml.Node) *yaml.Node {
	if node != nil && node.Kind == yaml.AliasNode && node.Alias != nil {
		return node.Alias
	}
	return node
}

func (p *Parser) invalid(node *yaml.Node, msg string) Operation {
	return Operation{
		Type: OpParseError,
		Err:  fmt.Sprintf("%s at %d:%d", msg, node.Line, node.Column),
	}
}

// opType matches an operation key, case-sensitively, against the symbolic
// names and their single-digit aliases.
func opType(key string) (OpType, bool) {
	switch key {
	case "add_movie", "1":
		return OpAddMovie, true
	case "add_genre", "2":
		return OpAddGenre, true
	case "remove_movie", "3":
		return OpRemoveMovie, true
	case "list_summaries", "4":
		return OpListSummaries, true
	case "list_movies", "5":
		return OpListMovies, true
	case "get_movie", "6":
		return OpGetMovie, true
	case "search_by_genre", "7":
		return OpSearchByGenre, true
	default:
		return OpParseError, false
	}
}

// parseBareScalar handles an operation written outside any mapping, where
// only the zero-argument operations are meaningful.
func (p *Parser) parseBareScalar(node *yaml.Node) Operation {
	ty, ok := opType(node.Value)
	if !ok {
		return p.invalid(node, "unrecognized operation key")
	}
	switch ty {
	case OpListMovies, OpListSummaries:
		return Operation{Type: ty}
	default:
		return p.invalid(node, "operation requires a dictionary")
	}
}

// parsePair interprets one key/value entry of an operation mapping.
func (p *Parser) parsePair(key, value *yaml.Node) Operation {
	key = deref(key)
	value = deref(value)
	if key.Kind != yaml.ScalarNode {
		return p.invalid(key, "unrecognized operation key")
	}
	ty, ok := opType(key.Value)
	if !ok {
		return p.invalid(key, "unrecognized operation key")
	}

	switch ty {
	case OpAddMovie:
		return p.parseMovie(value)
	case OpAddGenre:
		return p.parseMovieKey(value, ty, true, true)
	case OpGetMovie, OpRemoveMovie:
		return p.parseMovieKey(value, ty, true, false)
	case OpSearchByGenre:
		return p.parseMovieKey(value, ty, false, true)
	default: // OpListMovies, OpListSummaries
		if isEmptyValue(value) {
			return Operation{Type: ty}
		}
		return p.invalid(value, "invalid input for operation")
	}
}

// isEmptyValue accepts the value shapes a zero-argument operation may carry
// inside a mapping: nothing, an explicit null, or an empty mapping.
func isEmptyValue(node *yaml.Node) bool {
	switch node.Kind {
	case 0:
		return true
	case yaml.ScalarNode:
		return node.Tag == "!!null"
	case yaml.MappingNode:
		return len(node.Content) == 0
	default:
		return false
	}
}

// Field identifiers for operation mapping keys; fieldOf maps each key, with
// its aliases, to one of them.
const (
	fieldOther = iota
	fieldID
	fieldTitle
	fieldDirector
	fieldYear
	fieldGenres
	fieldName
)

func fieldOf(key string) int {
	switch key {
	case "id":
		return fieldID
	case "title":
		return fieldTitle
	case "director":
		return fieldDirector
	case "year", "release_year":
		return fieldYear
	case "genre", "genres":
		return fieldGenres
	case "name":
		return fieldName
	default:
		return fieldOther
	}
}

// parseI64 parses a full-range decimal integer, rejecting empty strings,
// surrounding garbage and overflow.
func parseI64(s string) (int64, bool) {
	v, err := strconv.ParseInt(s, 10, 64)
	return v, err == nil
}

// parseMovie walks an add_movie mapping, driving the builder field by field.
// Duplicate keys keep the first accepted value. The record is complete when
// title, director, release year and the genre list are all present; the id
// is always forced to zero, ignoring any id the client sent.
func (p *Parser) parseMovie(node *yaml.Node) Operation {
	b := p.builder
	b.Reset()
	_ = b.SetID(0)

	if node.Kind != yaml.MappingNode {
		return p.invalid(node, "invalid movie input, not inside a mapping")
	}

	var lastErr *Operation
	setErr := func(op Operation) {
		if lastErr == nil {
			lastErr = &op
		}
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := deref(node.Content[i]), deref(node.Content[i+1])
		if key.Kind != yaml.ScalarNode {
			setErr(p.invalid(key, "invalid key in movie input"))
			continue
		}

		switch fieldOf(key.Value) {
		case fieldTitle:
			if b.HasTitle() {
				continue
			}
			if value.Kind != yaml.ScalarNode {
				setErr(p.invalid(value, "title must be a scalar"))
				continue
			}
			if err := b.SetTitle([]byte(value.Value)); err != nil {
				setErr(p.invalid(value, "invalid title input"))
			}

		case fieldDirector:
			if b.HasDirector() {
				continue
			}
			if value.Kind != yaml.ScalarNode {
				setErr(p.invalid(value, "director must be a scalar"))
				continue
			}
			if err := b.SetDirector([]byte(value.Value)); err != nil {
				setErr(p.invalid(value, "invalid director input"))
			}

		case fieldYear:
			if b.HasReleaseYear() {
				continue
			}
			if value.Kind != yaml.ScalarNode {
				setErr(p.invalid(value, "release year must be a scalar"))
				continue
			}
			year, ok := parseI64(value.Value)
			if !ok {
				setErr(p.invalid(value, "release year is not a valid integer"))
				continue
			}
			if year < math.MinInt32 || year > math.MaxInt32 {
				setErr(p.invalid(value, "release year out of range"))
				continue
			}
			_ = b.SetReleaseYear(int32(year))

		case fieldGenres:
			if b.HasGenres() {
				continue
			}
			if op, ok := p.parseGenreList(value); !ok {
				setErr(op)
			}

		default:
			// unknown keys, and any client-sent id, are ignored
		}
	}

	var op Operation
	op.Type = OpAddMovie
	if err := b.CurrentMovie(&op.Movie); err != nil {
		if lastErr != nil {
			return *lastErr
		}
		return p.invalid(node, "operation incomplete")
	}
	return op
}

// parseGenreList accepts either a single scalar genre or a sequence of
// scalar genres.
func (p *Parser) parseGenreList(node *yaml.Node) (Operation, bool) {
	b := p.builder
	_ = b.StartGenres()

	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return Operation{}, true
		}
		if err := b.AddGenre([]byte(node.Value)); err != nil {
			return p.invalid(node, "invalid genre input"), false
		}
		return Operation{}, true

	case yaml.SequenceNode:
		for _, item := range node.Content {
			item = deref(item)
			switch item.Kind {
			case yaml.ScalarNode:
				if err := b.AddGenre([]byte(item.Value)); err != nil {
					return p.invalid(item, "invalid genre input"), false
				}
			case yaml.SequenceNode:
				return p.invalid(item, "internal sequence in genre list invalid"), false
			default:
				return p.invalid(item, "mapping unsupported in genre list"), false
			}
		}
		return Operation{}, true

	default:
		return p.invalid(node, "mapping unsupported in genre list"), false
	}
}

// parseMovieKey handles the compact operations that need an id, a genre, or
// both. The value may be a bare scalar (when only one field is required) or
// a mapping with id and genre/name keys.
func (p *Parser) parseMovieKey(node *yaml.Node, ty OpType, needID, needGenre bool) Operation {
	b := p.builder
	b.Reset()
	if !needID {
		_ = b.SetID(0)
	}
	if !needGenre {
		// the summary title slot doubles as the genre field
		_ = b.SetTitle(nil)
	}

	var lastErr *Operation
	setErr := func(op Operation) {
		if lastErr == nil {
			lastErr = &op
		}
	}

	switch node.Kind {
	case yaml.ScalarNode:
		switch {
		case needID && !needGenre:
			if id, ok := parseI64(node.Value); ok {
				_ = b.SetID(id)
			} else {
				setErr(p.invalid(node, "movie id is not a valid integer"))
			}
		case needGenre && !needID:
			if err := b.SetTitle([]byte(node.Value)); err != nil {
				setErr(p.invalid(node, "invalid genre input"))
			}
		default:
			setErr(p.invalid(node, "invalid input for operation"))
		}

	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := deref(node.Content[i]), deref(node.Content[i+1])
			if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
				setErr(p.invalid(key, "invalid input for operation"))
				continue
			}
			switch fieldOf(key.Value) {
			case fieldID:
				if b.HasID() {
					continue
				}
				if id, ok := parseI64(value.Value); ok {
					_ = b.SetID(id)
				} else {
					setErr(p.invalid(value, "movie id is not a valid integer"))
				}
			case fieldGenres, fieldName:
				if b.HasTitle() {
					continue
				}
				if err := b.SetTitle([]byte(value.Value)); err != nil {
					setErr(p.invalid(value, "invalid genre input"))
				}
			default:
				// ignored
			}
		}

	case yaml.SequenceNode:
		return p.invalid(node, "sequence unsupported in this operation")

	default:
		setErr(p.invalid(node, "invalid input for operation"))
	}

	var view model.SummaryView
	if err := b.CurrentSummary(&view); err != nil {
		if lastErr != nil {
			return *lastErr
		}
		return p.invalid(node, "operation incomplete")
	}
	return Operation{Type: ty, MovieID: view.ID, Genre: view.Title}
}
