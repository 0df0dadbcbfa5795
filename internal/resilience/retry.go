// Package resilience retries calls to remote services such as the dataset
// mirror.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Backoff is a retry policy: up to Attempts calls, waiting an exponentially
// growing, jittered delay between them.
type Backoff struct {
	// Attempts is the total number of calls, first one included.
	Attempts int
	// Initial is the wait after the first failure; it doubles per failure.
	Initial time.Duration
	// Ceiling caps a single wait.
	Ceiling time.Duration
	// Spread is the jitter as a fraction of the wait, split evenly around it.
	Spread float64
	// Retryable decides whether an error is worth another call.
	// Nil means Transient.
	Retryable func(error) bool
}

// MirrorBackoff is the policy for dataset mirror uploads.
func MirrorBackoff() Backoff {
	return Backoff{
		Attempts:  4,
		Initial:   250 * time.Millisecond,
		Ceiling:   5 * time.Second,
		Spread:    0.2,
		Retryable: Transient,
	}
}

// Transient treats every error except context cancellation and deadline
// expiry as worth retrying.
func Transient(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it succeeds, returns an error the policy does not retry,
// runs out of attempts or ctx ends. It returns fn's last error, or ctx's.
// op names the call in debug logs.
func (b Backoff) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := max(b.Attempts, 1)
	retryable := b.Retryable
	if retryable == nil {
		retryable = Transient
	}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil || n >= attempts || !retryable(err) {
			return err
		}

		wait := b.wait(n)
		slog.Debug("retrying",
			slog.String("op", op),
			slog.Int("attempt", n),
			slog.Int("attempts", attempts),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// wait returns the pause after the n-th failed call, n starting at 1.
func (b Backoff) wait(n int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 1; i < n && (b.Ceiling <= 0 || d < b.Ceiling); i++ {
		d *= 2
	}
	if b.Ceiling > 0 && d > b.Ceiling {
		d = b.Ceiling
	}
	if b.Spread > 0 {
		d += time.Duration(float64(d) * b.Spread * (rand.Float64() - 0.5))
	}
	return d
}
