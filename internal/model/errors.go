package model

import (
	"errors"
	"fmt"
)

// Backend error codes. The taxonomy has one branch for everything the
// authoritative store reports; the code recovers the finer distinction.
const (
	CodeNotFound      = "not_found"
	CodeConflict      = "conflict"
	CodeInvalidInvite = "invalid_invite"
	CodeTransport     = "transport"
	CodeInternal      = "internal"
)

// Sentinels matched by BackendError.Is through its code.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidInvite = errors.New("invalid or expired invite")
)

// ValidationError is a caller-side precondition failure. It is returned
// before anything is sent to the backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// BackendError wraps any failure reported by the authoritative store or
// the transport in front of it.
type BackendError struct {
	Op   string
	Code string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is matches the code sentinels so callers can use errors.Is.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrConflict:
		return e.Code == CodeConflict
	case ErrInvalidInvite:
		return e.Code == CodeInvalidInvite
	}
	return false
}

// AsBackend wraps err as a BackendError for op. Errors that already are
// BackendErrors keep their code; sentinels map to their code.
func AsBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		if be.Op == op {
			return be
		}
		return &BackendError{Op: op, Code: be.Code, Err: err}
	}
	return &BackendError{Op: op, Code: CodeOf(err), Err: err}
}

// CodeOf classifies err into a backend error code.
func CodeOf(err error) string {
	var be *BackendError
	switch {
	case errors.As(err, &be):
		return be.Code
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidInvite):
		return CodeInvalidInvite
	}
	return CodeInternal
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
