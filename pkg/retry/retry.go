// Package retry provides the execution-wrapping utilities used by the engine:
// an exponential-backoff retry policy and a hard timeout guard for calls that
// may hang.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned (wrapped) when a guarded call exceeds its deadline.
var ErrTimeout = errors.New("operation timed out")

// Policy retries a transient failure with exponential backoff. A zero policy
// runs the function once with no retries.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry; each subsequent retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so Do stops retrying and returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds or the retry budget is spent. attempt is
// 1-based. The sleep between attempts respects ctx cancellation; the last
// error is returned when all attempts fail. An error wrapped with Permanent
// aborts the remaining attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	attempts := p.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < attempts {
			if err := sleep(ctx, p.delay(attempt)); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

// delay returns the backoff before the retry following the given attempt.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithTimeout runs fn with a deadline and returns a timeout error as soon as
// the deadline passes, even if fn has not returned. The underlying call is
// not forcibly aborted; callers should give fn its own driver-level timeout
// so the goroutine does not outlive the guard for long.
func WithTimeout(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return ctx.Err()
	}
}
