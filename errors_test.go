package fsgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/giantswarm/mcp-fsgate/session"
	"github.com/giantswarm/mcp-fsgate/storage"
	"github.com/giantswarm/mcp-fsgate/vfs"
)

func TestGateErrorError(t *testing.T) {
	err := ErrNotFound("token is unknown")
	assert.Equal(t, "not_found: token is unknown", err.Error())
	assert.Equal(t, http.StatusNotFound, err.Status)
}

func TestGateErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("lookup: %w", storage.ErrNotFound)
	err := ErrNotFound("token is unknown").WithCause(cause)

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "path escape is a security violation",
			err:      fmt.Errorf("resolve: %w", vfs.ErrPathEscape),
			wantCode: ErrorCodeSecurityViolation,
		},
		{
			name:     "session conflict",
			err:      fmt.Errorf("acquire: %w", session.ErrConflict),
			wantCode: ErrorCodeConflict,
		},
		{
			name:     "storage unavailable",
			err:      fmt.Errorf("get: %w", storage.ErrUnavailable),
			wantCode: ErrorCodeStorageUnavailable,
		},
		{
			name:     "backend unavailable",
			err:      fmt.Errorf("probe: %w", vfs.ErrBackendUnavailable),
			wantCode: ErrorCodeStorageUnavailable,
		},
		{
			name:     "storage not found",
			err:      fmt.Errorf("get: %w", storage.ErrNotFound),
			wantCode: ErrorCodeNotFound,
		},
		{
			name:     "vfs not found",
			err:      fmt.Errorf("stat: %w", vfs.ErrNotFound),
			wantCode: ErrorCodeNotFound,
		},
		{
			name:     "session record not found",
			err:      fmt.Errorf("load: %w", session.ErrRecordNotFound),
			wantCode: ErrorCodeNotFound,
		},
		{
			name:     "invalid glob pattern",
			err:      fmt.Errorf("glob: %w", vfs.ErrInvalidInput),
			wantCode: ErrorCodeInvalidInput,
		},
		{
			name:     "context cancellation",
			err:      context.Canceled,
			wantCode: ErrorCodeStorageUnavailable,
		},
		{
			name:     "unclassified error",
			err:      errors.New("something else"),
			wantCode: ErrorCodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			assert.Equal(t, tt.wantCode, mapped.Code)
			assert.ErrorIs(t, mapped, tt.err)
		})
	}
}

func TestMapErrorPassesGateErrorThrough(t *testing.T) {
	original := ErrSecurityViolation("refresh token has already been redeemed")
	mapped := MapError(fmt.Errorf("refresh: %w", original))
	assert.Same(t, original, mapped)
}

func TestMapErrorNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}
