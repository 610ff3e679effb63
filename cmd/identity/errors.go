package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; it never includes secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ValidationError reports malformed input for a single logical field ("email", "password", ...).
type ValidationError struct {
	Op    string
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %v: %s: %s", e.Op, ErrInvalidInput, e.Field, e.Msg)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// ConflictError reports a uniqueness/constraint conflict for a specific logical field.
// Field is a stable logical name: "email", "name", "token_hash", ...
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing referenced resource (e.g., FK violation) or missing row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// AuthenticationError is the single failure shape for bad credentials and unusable refresh tokens.
// Error() is identical for every cause so callers cannot tell unknown, wrong, revoked or expired apart.
type AuthenticationError struct {
	Op string
}

func (e AuthenticationError) Error() string { return "authentication failed" }

func (e AuthenticationError) Unwrap() error { return ErrUnauthenticated }

// Unauthenticated returns the uniform authentication failure for op.
func Unauthenticated(op string) error { return AuthenticationError{Op: op} }

// StorageError wraps a store failure. Retryable marks transient conditions
// (lock timeout, serialization failure, dropped connection).
type StorageError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e StorageError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s: %v (%s): %v", e.Op, ErrStorage, kind, e.Err)
}

func (e StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsNotActive reports whether err represents ErrNotActive.
func IsNotActive(err error) bool { return errors.Is(err, ErrNotActive) }

// IsUnauthenticated reports whether err is the uniform authentication failure.
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }

// IsForbidden reports whether err represents ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsRetryable reports whether err is a StorageError marked retryable.
func IsRetryable(err error) bool {
	var se StorageError
	return errors.As(err, &se) && se.Retryable
}
