package fsgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/giantswarm/mcp-fsgate/session"
	"github.com/giantswarm/mcp-fsgate/storage"
	"github.com/giantswarm/mcp-fsgate/vfs"
)

// Gateway error codes as constants
const (
	ErrorCodeNotFound           = "not_found"
	ErrorCodeConflict           = "conflict"
	ErrorCodeSecurityViolation  = "security_violation"
	ErrorCodeStorageUnavailable = "storage_unavailable"
	ErrorCodeInvalidInput       = "invalid_input"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
)

// GateError is the error shape every gateway operation surfaces. Code is
// one of the taxonomy constants above; Status is the protocol status the
// transport layer maps it to.
type GateError struct {
	Code        string // taxonomy code (e.g. "not_found", "security_violation")
	Description string // Human-readable error description
	Status      int    // Protocol status code
	cause       error
}

// Error implements the error interface
func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Unwrap exposes the underlying component error for errors.Is chains
func (e *GateError) Unwrap() error {
	return e.cause
}

// WithCause attaches the underlying component error
func (e *GateError) WithCause(err error) *GateError {
	e.cause = err
	return e
}

// NewGateError creates a new gateway error
func NewGateError(code, description string, status int) *GateError {
	return &GateError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// Common gateway errors as reusable constructors
var (
	// ErrNotFound indicates a missing or expired code, token, alias, or
	// session record. Recoverable: the caller proceeds with a fresh flow.
	ErrNotFound = func(desc string) *GateError {
		return NewGateError(ErrorCodeNotFound, desc, http.StatusNotFound)
	}

	// ErrConflict indicates the session is owned by a live other process.
	// Surfaced as a rejection, never retried automatically.
	ErrConflict = func(desc string) *GateError {
		return NewGateError(ErrorCodeConflict, desc, http.StatusConflict)
	}

	// ErrSecurityViolation indicates a path escaping the jail root or a
	// refresh token replay. Must never be downgraded to a plain not-found.
	ErrSecurityViolation = func(desc string) *GateError {
		return NewGateError(ErrorCodeSecurityViolation, desc, http.StatusForbidden)
	}

	// ErrStorageUnavailable indicates a persistence backend failure.
	// Retryable; nothing was partially written.
	ErrStorageUnavailable = func(desc string) *GateError {
		return NewGateError(ErrorCodeStorageUnavailable, desc, http.StatusServiceUnavailable)
	}

	// ErrInvalidInput indicates a caller error such as a non-absolute jail
	// root or a malformed pattern. Fatal, not retried.
	ErrInvalidInput = func(desc string) *GateError {
		return NewGateError(ErrorCodeInvalidInput, desc, http.StatusBadRequest)
	}

	// ErrRateLimited indicates the per-IP registration limit was hit
	ErrRateLimited = func(desc string) *GateError {
		return NewGateError(ErrorCodeRateLimited, desc, http.StatusTooManyRequests)
	}
)

// MapError classifies a component error onto the gateway taxonomy.
// A *GateError passes through unchanged; a security violation is never
// flattened into not-found.
func MapError(err error) *GateError {
	if err == nil {
		return nil
	}

	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateErr
	}

	switch {
	case errors.Is(err, vfs.ErrPathEscape):
		return ErrSecurityViolation(err.Error()).WithCause(err)
	case errors.Is(err, session.ErrConflict):
		return ErrConflict(err.Error()).WithCause(err)
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, vfs.ErrBackendUnavailable):
		return ErrStorageUnavailable(err.Error()).WithCause(err)
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, vfs.ErrNotFound),
		errors.Is(err, session.ErrRecordNotFound):
		return ErrNotFound(err.Error()).WithCause(err)
	case errors.Is(err, vfs.ErrInvalidInput):
		return ErrInvalidInput(err.Error()).WithCause(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrStorageUnavailable(err.Error()).WithCause(err)
	default:
		return ErrInvalidInput(err.Error()).WithCause(err)
	}
}
