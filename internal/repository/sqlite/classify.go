package sqlite

import (
	"errors"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/movie-catalog/internal/apperror"
)

// classify translates a SQLite extended result code into the application's
// four-value error taxonomy.
//
// The grouping follows the engine's code families: the extended switch first
// picks out codes whose classification differs from their family default,
// then the primary (low byte) code decides. Anything unknown is treated as a
// user error, matching the engine's use of the generic SQLITE_ERROR for
// statement-level problems.
func classify(code int) apperror.Kind {
	switch code {
	case sqlite3.SQLITE_OK, sqlite3.SQLITE_DONE,
		sqlite3.SQLITE_OK_LOAD_PERMANENTLY, sqlite3.SQLITE_OK_SYMLINK:
		return apperror.Success
	}

	// Extended codes that deviate from their family's default below.
	switch code {
	case sqlite3.SQLITE_CANTOPEN_CONVPATH,
		sqlite3.SQLITE_CANTOPEN_DIRTYWAL,
		sqlite3.SQLITE_CANTOPEN_FULLPATH,
		sqlite3.SQLITE_CANTOPEN_ISDIR,
		sqlite3.SQLITE_CANTOPEN_NOTEMPDIR,
		sqlite3.SQLITE_CANTOPEN_SYMLINK:
		// A plain CANTOPEN may clear on retry; these variants will not.
		return apperror.Hard
	case sqlite3.SQLITE_ERROR_RETRY,
		sqlite3.SQLITE_ERROR_SNAPSHOT:
		return apperror.Transient
	case sqlite3.SQLITE_ERROR_MISSING_COLLSEQ:
		return apperror.User
	case sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_IOERR_ACCESS,
		sqlite3.SQLITE_IOERR_DELETE,
		sqlite3.SQLITE_IOERR_DELETE_NOENT,
		sqlite3.SQLITE_IOERR_NOMEM,
		sqlite3.SQLITE_IOERR_RDLOCK,
		sqlite3.SQLITE_IOERR_SEEK,
		sqlite3.SQLITE_IOERR_SHMLOCK,
		sqlite3.SQLITE_IOERR_SHMMAP,
		sqlite3.SQLITE_IOERR_SHMOPEN,
		sqlite3.SQLITE_IOERR_SHMSIZE,
		sqlite3.SQLITE_IOERR_TRUNCATE:
		// Saturation-shaped I/O failures; the rest of the IOERR family is
		// unrecoverable for this worker.
		return apperror.Transient
	}

	switch code & 0xff {
	case sqlite3.SQLITE_ABORT,
		sqlite3.SQLITE_BUSY,
		sqlite3.SQLITE_CANTOPEN,
		sqlite3.SQLITE_FULL,
		sqlite3.SQLITE_LOCKED,
		sqlite3.SQLITE_NOLFS,
		sqlite3.SQLITE_NOMEM,
		sqlite3.SQLITE_PROTOCOL,
		sqlite3.SQLITE_ROW,
		sqlite3.SQLITE_SCHEMA:
		return apperror.Transient
	case sqlite3.SQLITE_CORRUPT,
		sqlite3.SQLITE_INTERNAL,
		sqlite3.SQLITE_INTERRUPT,
		sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_MISUSE,
		sqlite3.SQLITE_NOTADB,
		sqlite3.SQLITE_NOTFOUND,
		sqlite3.SQLITE_PERM,
		sqlite3.SQLITE_READONLY:
		return apperror.Hard
	default:
		// AUTH, CONSTRAINT, EMPTY, ERROR, FORMAT, MISMATCH, NOTICE, RANGE,
		// TOOBIG, WARNING.
		return apperror.User
	}
}

// check classifies a statement result together with the result of the
// statement-reset call that followed it. A failed reset always aborts the
// worker, regardless of the step outcome.
func check(code, resetCode int) apperror.Kind {
	if resetCode != sqlite3.SQLITE_OK {
		return apperror.Hard
	}
	return classify(code)
}

// checkList classifies a sequence of results left to right, returning the
// first non-success kind.
func checkList(codes []int, resetCode int) apperror.Kind {
	for _, code := range codes {
		if kind := check(code, resetCode); kind != apperror.Success {
			return kind
		}
	}
	return apperror.Success
}

// resultCode extracts the engine's extended result code from an error chain.
func resultCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// kindOf classifies an arbitrary driver error. Errors that did not come from
// the engine (bad connection, context cancellation) are transient: the store
// itself is not known to be damaged.
func kindOf(err error) apperror.Kind {
	if err == nil {
		return apperror.Success
	}
	if code, ok := resultCode(err); ok {
		return classify(code)
	}
	return apperror.Transient
}
