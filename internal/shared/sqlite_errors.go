// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
// This is another form of SQLite concurrency error.
func IsSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsSQLiteIOError checks for momentary disk I/O failures (SQLITE_IOERR).
func IsSQLiteIOError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_IOERR") ||
		strings.Contains(err.Error(), "disk I/O error")
}

// IsTransientError reports whether the error is a SQLite condition that
// typically clears on its own (lock contention, momentary I/O failure) and
// therefore warrants retry with backoff rather than flipping the store
// into degraded mode immediately.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err) || IsSQLiteIOError(err)
}
