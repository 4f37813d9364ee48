package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsCause(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "wrapped: %d", 42)

	assert.Contains(t, wrapped.Error(), "wrapped: 42")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestNotFound(t *testing.T) {
	err := NewNotFoundError("schedule %s", "ward-a")
	assert.True(t, IsNotFoundError(err))
	assert.True(t, IsNotFoundError(Wrap(err, "lookup")))
	assert.Equal(t, "schedule ward-a", err.Error())
	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(New("other")))
}

func TestTaxonomyMarks(t *testing.T) {
	t.Run("invalid input", func(t *testing.T) {
		err := NewInvalidInput("roster is empty")
		assert.True(t, Is(err, ErrInvalidInput))
		assert.False(t, Is(err, ErrSourceFormat))
		assert.False(t, IsRetryable(err))
	})

	t.Run("source unavailable wraps cause", func(t *testing.T) {
		cause := fmt.Errorf("dial tcp: connection refused")
		err := SourceUnavailable(cause, "read roster")
		require.Error(t, err)
		assert.True(t, Is(err, ErrSourceUnavailable))
		assert.True(t, IsRetryable(err))
		assert.True(t, IsRetryable(Wrap(err, "fetch")))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("source format is not retryable", func(t *testing.T) {
		err := SourceFormat(New("headcount \"two\" is not an integer"), "Shifts row 3")
		assert.True(t, Is(err, ErrSourceFormat))
		assert.False(t, IsRetryable(err))
	})

	t.Run("nil cause stays nil", func(t *testing.T) {
		assert.NoError(t, SourceUnavailable(nil, "x"))
		assert.NoError(t, SourceFormat(nil, "x"))
	})
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(ErrTimeout))
	assert.True(t, IsTimeout(Wrap(context.DeadlineExceeded, "fetch")))
	assert.False(t, IsTimeout(context.Canceled))
	assert.False(t, IsTimeout(nil))
}

func TestDetailsSurvive(t *testing.T) {
	err := WithDetail(NewSourceFormat("missing column %q", "employee_id"), "tab: Roster")
	assert.True(t, Is(err, ErrSourceFormat))
	assert.Contains(t, GetAllDetails(err), "tab: Roster")
}
