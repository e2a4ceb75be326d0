package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCause = errors.New("row locked")

func TestWrapKeepsCauseReachable(t *testing.T) {
	err := Wrap(errCause, CodeConflict, "process already assigned")

	require.ErrorIs(t, err, errCause)
	assert.True(t, HasCode(err, CodeConflict))
	assert.Equal(t, "process already assigned: row locked", err.Error())
}

func TestCodeOf(t *testing.T) {
	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "evaluator not found")
		outer := Wrap(inner, CodeValidation, "invalid assignment")
		assert.Equal(t, CodeValidation, CodeOf(outer))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("assign: %w", New(CodeConflict, "evaluator at capacity"))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errCause))
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(CodeUnavailable, "notifier down")))
	assert.True(t, IsRetryable(New(CodeTimeout, "deadline exceeded")))
	assert.False(t, IsRetryable(New(CodeConflict, "already finalized")))
	assert.False(t, IsRetryable(New(CodeValidation, "bad outcome")))
}
