package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrier_RetriesTransientErrors(t *testing.T) {
	transient := errors.New("connection reset")
	attempts := 0
	var retried []int

	r := New(
		WithMaxAttempts(4),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }),
	)

	got, err := DoWithData(context.Background(), r, func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, Retryable(transient)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetrier_StopsOnPermanentAndUnmarked(t *testing.T) {
	bad := errors.New("bad query")
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(bad)
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond))
	assert.Same(t, bad, err)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = Do(context.Background(), func(context.Context) error {
		attempts++
		return bad
	}, WithMaxAttempts(5))
	assert.Same(t, bad, err)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	transient := errors.New("timeout")
	attempts := 0
	err := Do(context.Background(), func(context.Context) error {
		attempts++
		return transient
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithRetryIf(func(error) bool { return true }))
	assert.Same(t, transient, err)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_HonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
