// Package retry provides exponential backoff strategies for re-establishing
// lost store connections and change feed subscriptions.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Strategy defines the retry behavior for a failing operation.
// It implements exponential backoff with a bounded number of attempts.
//
// The retry schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (500ms base, 2.0 exponential, 30s max):
//
//	Attempt 1: 1s
//	Attempt 2: 2s
//	Attempt 3: 4s
//	...
//	Attempt 8: 30s (→ give up)
type Strategy struct {
	MaxAttempts     int           // Maximum attempts before giving up
	BaseDelay       time.Duration // Initial retry delay
	MaxDelay        time.Duration // Maximum retry delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default reconnect strategy.
// Configuration: 8 attempts, 500ms→30s exponential backoff.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     8,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay calculates the delay before the given attempt using exponential backoff.
// Formula: delay = min(BaseDelay * ExponentialBase^attemptNumber, MaxDelay)
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable checks if another attempt is allowed.
// Returns true if the attempt count is below the maximum attempts limit.
func (s Strategy) IsRetryable(attemptCount int) bool {
	return attemptCount < s.MaxAttempts
}

// Wait sleeps for the delay of the given attempt or until ctx is done.
func (s Strategy) Wait(ctx context.Context, attemptNumber int) error {
	timer := time.NewTimer(s.CalculateRetryDelay(attemptNumber))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns an error for which retryable reports
// false, or MaxAttempts is exhausted. The last error is returned.
//
// onRetry, if not nil, is called before each wait with the failed attempt
// number (1-based) and its error.
func (s Strategy) Do(
	ctx context.Context,
	fn func(ctx context.Context) error,
	retryable func(error) bool,
	onRetry func(attempt int, err error),
) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if !s.IsRetryable(attempt) {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if waitErr := s.Wait(ctx, attempt); waitErr != nil {
			return fmt.Errorf("%w (last error: %v)", waitErr, err)
		}
	}
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
//
// Example output:
//
//	Retry Schedule:
//	  Attempt 1: after 1s
//	  Attempt 2: after 2s
//	  ...
//	  → Give up
func (s Strategy) GetRetrySchedule() string {
	schedule := "Retry Schedule:\n"
	for i := 1; i < s.MaxAttempts; i++ {
		delay := s.CalculateRetryDelay(i)
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i+1, delay)
	}
	schedule += "  → Give up\n"
	return schedule
}
