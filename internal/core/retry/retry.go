// Package retry runs fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how often and how patiently an operation is retried.
// MaxRetries counts retries after the first attempt, so an operation that
// keeps failing is invoked MaxRetries+1 times.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
}

// DefaultPolicy retries 3 times, starting at 10ms and doubling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2,
	}
}

// MaxRetryError is returned when every attempt failed. Only the most recent
// failure is kept.
type MaxRetryError struct {
	Attempts int
	Err      error
}

func (e *MaxRetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxRetryError) Unwrap() error {
	return e.Err
}

// Do invokes op until it succeeds or the policy is exhausted. Any error is
// treated as retryable. The wait between attempts is aborted when ctx is done,
// in which case the last operation error is returned wrapped together with
// the context error.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	backoff := p.InitialBackoff
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, &MaxRetryError{Attempts: attempts, Err: fmt.Errorf("%w (last error: %w)", ctx.Err(), lastErr)}
			case <-timer.C:
			}
			backoff = time.Duration(float64(backoff) * multiplier)
		}

		attempts++
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return zero, &MaxRetryError{Attempts: attempts, Err: lastErr}
}

// DoErr is Do for operations that only return an error.
func DoErr(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
