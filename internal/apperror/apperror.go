// Package apperror defines the application's error taxonomy.
//
// Every failure in the request pipeline collapses into one of four kinds:
// the operation succeeded, it failed transiently (a retry may help), the
// client sent something invalid, or the owning worker must abort. Components
// wrap concrete causes with %w and classify with KindOf at the boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the coarse classification of an operation outcome.
type Kind uint8

const (
	// Success means the operation completed. KindOf(nil) returns it.
	Success Kind = iota
	// Transient marks failures that may clear on retry: busy store, I/O
	// saturation, lock contention, schema change.
	Transient
	// User marks client-attributable failures: constraint violations,
	// malformed input, unknown ids. Never retried.
	User
	// Hard marks unrecoverable failures: corruption, engine misuse,
	// permission errors. The owning worker aborts.
	Hard
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case User:
		return "user"
	case Hard:
		return "hard"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

var (
	ErrTransient = errors.New("transient error")
	ErrUser      = errors.New("user error")
	ErrHard      = errors.New("hard error")

	// ErrNotFound is a user error for lookups that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is a user error for uniqueness violations.
	ErrConflict = errors.New("conflict")
)

// AppError carries a classification kind plus a human-readable message that
// is safe to echo back to the client.
type AppError struct {
	Kind    Kind
	Err     error  // underlying cause, may be nil
	Message string // human-readable error message
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound returns a user error with the given client-facing message.
func NotFound(format string, args ...any) *AppError {
	return &AppError{
		Kind:    User,
		Err:     ErrNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// Conflict returns a user error for a uniqueness violation.
func Conflict(format string, args ...any) *AppError {
	return &AppError{
		Kind:    User,
		Err:     ErrConflict,
		Message: fmt.Sprintf(format, args...),
	}
}

// Invalid returns a user error for malformed input.
func Invalid(format string, args ...any) *AppError {
	return &AppError{
		Kind:    User,
		Err:     ErrUser,
		Message: fmt.Sprintf(format, args...),
	}
}

// Retryable wraps err as a transient failure.
func Retryable(err error) *AppError {
	return &AppError{
		Kind:    Transient,
		Err:     err,
		Message: err.Error(),
	}
}

// Fatal wraps err as a hard failure that terminates the worker.
func Fatal(err error) *AppError {
	return &AppError{
		Kind:    Hard,
		Err:     err,
		Message: err.Error(),
	}
}

// WithKind wraps err under an explicit kind, keeping its message.
func WithKind(kind Kind, err error) *AppError {
	return &AppError{Kind: kind, Err: err, Message: err.Error()}
}

// KindOf walks the error chain and returns the classification of err.
// nil classifies as Success; errors carrying no AppError are classified by
// the sentinel they wrap, and errors with neither default to Hard, because an
// unclassified failure must not be silently retried or blamed on the client.
func KindOf(err error) Kind {
	if err == nil {
		return Success
	}
	var app *AppError
	if errors.As(err, &app) {
		return app.Kind
	}
	switch {
	case errors.Is(err, ErrTransient):
		return Transient
	case errors.Is(err, ErrUser), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return User
	default:
		return Hard
	}
}
