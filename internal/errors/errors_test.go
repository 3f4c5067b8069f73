package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	t.Parallel()

	plain := NotFound("user not found")
	assert.Equal(t, "user not found", plain.Error())

	wrapped := Wrap(errors.New("dial tcp: refused"), ErrCodeUnavailable, "directory unreachable")
	assert.Equal(t, "directory unreachable: dial tcp: refused", wrapped.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying")
	err := Wrap(cause, ErrCodeInternal, "wrapped")
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Wrap(nil, ErrCodeInternal, "should be nil"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "should be %s", "nil"))
}

func TestCodePredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
	}{
		{"not found", NotFound("x"), IsNotFound},
		{"conflict", Conflict("x"), IsConflict},
		{"validation", Validation("x"), IsValidation},
		{"unauthorized", Unauthorized("x"), IsUnauthorized},
		{"forbidden", Forbidden("x"), IsForbidden},
		{"unavailable", Unavailable("x"), IsUnavailable},
		{"partial failure", PartialFailure("x"), IsPartialFailure},
		{"internal", Internal("x"), IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.predicate(tt.err))
			assert.False(t, tt.predicate(errors.New("plain error")))
		})
	}
}

func TestCodePredicates_ThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := PartialFailure("role updated but account not disabled")
	outer := fmt.Errorf("disable user u2: %w", inner)

	assert.True(t, IsPartialFailure(outer))
	assert.False(t, IsForbidden(outer))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrCodeForbidden, GetCode(Forbidden("admin role required")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(nil))
}

func TestGetField(t *testing.T) {
	t.Parallel()

	err := ValidationField("email", "invalid email address")
	require.Equal(t, "email", GetField(err))
	assert.Equal(t, "", GetField(Validation("no field")))
}
