// Package shared provides helpers used by more than one storage package.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// primaryCode returns the primary result code of a driver error.
// Extended codes such as SQLITE_BUSY_SNAPSHOT keep their primary code in the low byte.
func primaryCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff, true
	}
	return 0, false
}

// IsSQLiteBusyError reports whether err is SQLITE_BUSY: another connection
// holds the write lock.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := primaryCode(err); ok {
		return code == sqlite3.SQLITE_BUSY
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError reports whether err is SQLITE_LOCKED or a
// "database is locked" message.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := primaryCode(err); ok && code == sqlite3.SQLITE_LOCKED {
		return true
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteConflictError reports whether err is a lock conflict worth retrying.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
