package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func quick(attempts int) Backoff {
	return Backoff{Attempts: attempts, Initial: time.Millisecond, Ceiling: 2 * time.Millisecond}
}

func TestBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := quick(4).Do(context.Background(), "upload", func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_StopsAfterAttempts(t *testing.T) {
	calls := 0
	err := quick(3).Do(context.Background(), "upload", func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestBackoff_ZeroAttemptsStillCallsOnce(t *testing.T) {
	calls := 0
	err := Backoff{}.Do(context.Background(), "upload", func(context.Context) error {
		calls++
		return errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestBackoff_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("access denied")
	b := quick(5)
	b.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := b.Do(context.Background(), "upload", func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoff_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := quick(3).Do(ctx, "upload", func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestTransient(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.True(t, Transient(errFlaky))
	assert.False(t, Transient(context.Canceled))
	assert.False(t, Transient(context.DeadlineExceeded))
}

func TestBackoff_WaitDoublesUpToCeiling(t *testing.T) {
	b := Backoff{Initial: time.Second, Ceiling: 3 * time.Second}

	assert.Equal(t, time.Second, b.wait(1))
	assert.Equal(t, 2*time.Second, b.wait(2))
	assert.Equal(t, 3*time.Second, b.wait(3))
	assert.Equal(t, 3*time.Second, b.wait(40))
}

func TestMirrorBackoff(t *testing.T) {
	b := MirrorBackoff()
	assert.Equal(t, 4, b.Attempts)
	assert.NotNil(t, b.Retryable)
}
