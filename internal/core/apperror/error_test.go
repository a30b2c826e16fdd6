package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{NewValidation("bad"), http.StatusBadRequest},
		{NewNotFound("spot", "x"), http.StatusNotFound},
		{NewInvalidState("occupied"), http.StatusConflict},
		{NewConflict("taken"), http.StatusConflict},
		{NewDuplicate("spot", "code", "A-01"), http.StatusConflict},
		{NewCapacity("full"), http.StatusServiceUnavailable},
		{NewTransaction(ReasonAborted, "aborted"), http.StatusInternalServerError},
		{NewUnauthorized("no token"), http.StatusUnauthorized},
		{NewForbidden("nope"), http.StatusForbidden},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus, tt.err.Code)
		assert.Equal(t, tt.status, GetHTTPStatus(tt.err))
	}

	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}

func TestUnwrapThroughWrapping(t *testing.T) {
	cause := errors.New("index violated")
	appErr := NewConflict("spot taken").WithCause(cause)

	wrapped := fmt.Errorf("insert spots: %w", appErr)

	got, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeConflict, got.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, IsConflict(wrapped))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(NewTransaction(ReasonTimeout, "timed out")))
	assert.False(t, IsTimeout(NewTransaction(ReasonAborted, "aborted")))
	assert.False(t, IsTimeout(errors.New("deadline")))
}
