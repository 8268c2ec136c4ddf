package cerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryFromCode(t *testing.T) {
	e := New(ErrCodeStorageBusy, "locked", nil)
	assert.Equal(t, CategoryStorage, e.Category)
	assert.Equal(t, SeverityWarning, e.Severity)
	assert.True(t, e.Retryable())
}

func TestCodexErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	e := StorageError("write failed", cause)
	assert.ErrorIs(t, e, cause)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUpOnNonTransient(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return errors.New("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), func() error {
		attempts++
		return errors.New("database is busy")
	})
	require.Error(t, err)
	assert.Equal(t, MaxRetryAttempts, attempts)
}
