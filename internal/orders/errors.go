package orders

import (
	"errors"
	"fmt"
	"github.com/ariefcatur/go-vendor-orders/internal/postgres"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidStatus     = errors.New("status must be pending or completed")
	ErrSystemFailure     = errors.New("system failure")
)

// ValidationError is a client-visible failure tied to one request field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }
func (e *ValidationError) Unwrap() error { return e.Err }

func insufficientStock() error {
	return &ValidationError{Field: "quantity", Message: "Insufficient stock", Err: ErrInsufficientStock}
}

// SystemError wraps store and queue failures. The operation as a whole is
// safe to retry; the caller only ever sees a generic message.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string        { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *SystemError) Unwrap() error        { return e.Err }
func (e *SystemError) Is(target error) bool { return target == ErrSystemFailure }

// LockTimeout reports whether the failure was a row-lock wait that gave up.
func (e *SystemError) LockTimeout() bool { return postgres.IsLockTimeout(e.Err) }

// Retryable reports whether an immediate retry can succeed: transient
// SQLSTATEs and failures that never reached the server. Constraint and
// other server-side rejections will fail the same way again.
func (e *SystemError) Retryable() bool {
	return postgres.IsRetryable(e.Err) || !postgres.IsServerError(e.Err)
}

func systemErr(op string, err error) error {
	return &SystemError{Op: op, Err: err}
}
