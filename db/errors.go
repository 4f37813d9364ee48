package db

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/rota/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database,
// typically while a worker is still draining during shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// The string fallback covers errors the sql package returns unwrapped.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}

// NotFound converts sql.ErrNoRows into errors.ErrNotFound with a message; other errors are wrapped.
func NotFound(err error, format string, args ...interface{}) error {
	if err == sql.ErrNoRows || errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError(format, args...)
	}
	return errors.Wrapf(err, format, args...)
}
