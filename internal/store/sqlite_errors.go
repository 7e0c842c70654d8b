package store

import "strings"

// isSQLiteBusyError checks if the error is a SQLITE_BUSY error.
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// isSQLiteLockedError checks if the error is a "database is locked" error.
func isSQLiteLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// isSQLiteConflictError reports SQLite concurrency errors worth retrying.
func isSQLiteConflictError(err error) bool {
	return isSQLiteBusyError(err) || isSQLiteLockedError(err)
}
