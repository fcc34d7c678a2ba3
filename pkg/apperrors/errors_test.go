package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("direct error", func(t *testing.T) {
		assert.Equal(t, CodeNotFound, CodeOf(NotFound("missing")))
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := New(CodeBlocked, "blocked")
		outer := fmt.Errorf("handler: %w", inner)
		assert.Equal(t, CodeBlocked, CodeOf(outer))
	})

	t.Run("plain error", func(t *testing.T) {
		assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	})
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := StoreUnavailable(cause)

	assert.Equal(t, CodeStoreUnavailable, CodeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestIs(t *testing.T) {
	err := New(CodeCallInProgress, "busy")
	assert.True(t, Is(err, CodeCallInProgress))
	assert.False(t, Is(err, CodeBlocked))
	assert.False(t, Is(errors.New("plain"), CodeBlocked))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidArgument:      http.StatusBadRequest,
		CodeUnauthenticated:      http.StatusUnauthorized,
		CodeWrongPassword:        http.StatusUnauthorized,
		CodePermissionDenied:     http.StatusForbidden,
		CodeBlocked:              http.StatusForbidden,
		CodeNotFound:             http.StatusNotFound,
		CodeEmailInUse:           http.StatusConflict,
		CodeUsernameTaken:        http.StatusConflict,
		CodeAlreadyFriends:       http.StatusConflict,
		CodeCallInProgress:       http.StatusConflict,
		CodeInvalidTransition:    http.StatusConflict,
		CodeWeakPassword:         http.StatusUnprocessableEntity,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeStoreUnavailable:     http.StatusServiceUnavailable,
		CodeSignalingWriteFailed: http.StatusServiceUnavailable,
		CodeInternal:             http.StatusInternalServerError,
		CodeUnknown:              http.StatusInternalServerError,
	}

	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), "code %s", code)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(CodeInternal, "outer", cause)

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, cause, appErr.Unwrap())
}
