package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: 5 * time.Millisecond}
}

func TestRetry_Success(t *testing.T) {
	attempts := 0
	got, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		attempts++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetry_EventualSuccess(t *testing.T) {
	attempts := 0
	got, err := Retry(context.Background(), fastPolicy(5), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("temporary error")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("persistent error")
	_, err := Retry(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		attempts++
		return 0, expectedErr
	})
	assert.Equal(t, expectedErr, err, "should return the last error")
	assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
}

func TestRetry_PermanentError(t *testing.T) {
	permanent := errors.New("bad request")
	policy := fastPolicy(5)
	policy.Permanent = func(err error) bool { return errors.Is(err, permanent) }

	attempts := 0
	_, err := Retry(context.Background(), policy, func(context.Context) (int, error) {
		attempts++
		return 0, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts, "permanent errors are not retried")
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	_, err := Retry(ctx, fastPolicy(10), func(context.Context) (int, error) {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return 0, errors.New("error")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2, "should stop when context is canceled")
}

func TestRetry_InvalidAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		_, err := Retry(context.Background(), fastPolicy(n), func(context.Context) (int, error) {
			attempts++
			return 0, nil
		})
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Equal(t, 0, attempts)
	}
}
