package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateBackoffNoJitterIsExactExponential(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 50 * time.Millisecond, MaxDelay: 2000 * time.Millisecond, JitterFactor: 0}
	assert.Equal(t, 50*time.Millisecond, calculateBackoff(cfg, 0))
	assert.Equal(t, 100*time.Millisecond, calculateBackoff(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(cfg, 2))
}

func TestCalculateBackoffCapsAtMaxDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 50 * time.Millisecond, MaxDelay: 2000 * time.Millisecond, JitterFactor: 0}
	assert.Equal(t, 2000*time.Millisecond, calculateBackoff(cfg, 10))
}

func TestIsRetryableClassifiesBusyLockedIOErr(t *testing.T) {
	assert.True(t, isRetryable(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, isRetryable(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.True(t, isRetryable(sqlite3.Error{Code: sqlite3.ErrIoErr}))
	assert.True(t, isRetryable(sqlite3.Error{Code: sqlite3.ErrIoErr, ExtendedCode: 1034}))
	assert.False(t, isRetryable(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, isRetryable(errors.New("not a sqlite error")))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, JitterFactor: 0}
	attempts := 0
	err := Retry(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryReturnsTerminalErrorImmediately(t *testing.T) {
	cfg := DefaultRetryConfig()
	attempts := 0
	err := Retry(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return errors.New("constraint violation")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsMaxRetriesAndReturnsLastError(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFactor: 0}
	attempts := 0
	err := Retry(context.Background(), cfg, nil, func(ctx context.Context) error {
		attempts++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	cfg := DefaultRetryConfig()
	val, err := RetryWithResult(context.Background(), cfg, nil, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
}
