package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/kbukum/dbfixture/errors"
)

// Backoff configures how Retry spaces its attempts.
type Backoff struct {
	// Attempts is the total number of calls, including the first.
	Attempts int
	// Initial is the delay after the first failure.
	Initial time.Duration
	// Max caps the delay between attempts.
	Max time.Duration
	// Factor multiplies the delay after every failure.
	Factor float64
	// Jitter randomizes each delay by up to this fraction (0.0 to 1.0).
	Jitter float64
	// OnRetry, when set, is called before sleeping.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff returns the policy used for database connections.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  100 * time.Millisecond,
		Max:      2 * time.Second,
		Factor:   2.0,
		Jitter:   0.1,
	}
}

func (b Backoff) normalize() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	if b.Initial <= 0 {
		b.Initial = 100 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 2 * time.Second
	}
	if b.Factor < 1 {
		b.Factor = 2.0
	}
	return b
}

// Delay returns the wait before attempt+1, given that attempt failed.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalize()
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < 0 {
		d = float64(b.Initial)
	}
	return time.Duration(d)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped
// error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether Retry would call again after err. An
// *errors.AppError in the chain decides by its Retryable flag.
func Retryable(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.Retryable
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned as is.
func Retry[T any](ctx context.Context, b Backoff, fn func() (T, error)) (T, error) {
	var zero T
	b = b.normalize()

	var err error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if !Retryable(err) {
			var p *permanentError
			if errors.As(err, &p) {
				return zero, p.err
			}
			return zero, err
		}
		if attempt == b.Attempts {
			break
		}

		wait := b.Delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, err
}

// Do is Retry for functions without a result.
func Do(ctx context.Context, b Backoff, fn func() error) error {
	_, err := Retry(ctx, b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
