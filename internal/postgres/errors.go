package postgres

import (
	"errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the order flow cares about.
const (
	CodeLockNotAvailable     = "55P03"
	CodeQueryCanceled        = "57014"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeForeignKeyViolation  = "23503"
	CodeCheckViolation       = "23514"
)

func code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsLockTimeout reports whether err is a lock_timeout or statement cancel
// raised while waiting for a row lock.
func IsLockTimeout(err error) bool {
	c := code(err)
	return c == CodeLockNotAvailable || c == CodeQueryCanceled
}

// IsRetryable reports whether the whole transaction can safely be retried.
func IsRetryable(err error) bool {
	switch code(err) {
	case CodeLockNotAvailable, CodeQueryCanceled, CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return false
}

// IsServerError reports whether err carries a SQLSTATE, i.e. the server
// answered rather than the connection failing.
func IsServerError(err error) bool { return code(err) != "" }

func IsForeignKeyViolation(err error) bool { return code(err) == CodeForeignKeyViolation }
