// Package retry runs an operation under an exponential backoff policy
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrExhausted is matched by errors.Is when every attempt failed transiently
var ErrExhausted = errors.New("retry attempts exhausted")

// Class is the outcome of classifying an error
type Class int

const (
	// Transient errors are retried
	Transient Class = iota
	// Permanent errors are returned after the first attempt
	Permanent
)

// ExhaustedError wraps the last transient error once the attempt budget is spent
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrExhausted, e.Attempts, e.Err)
}

// Unwrap exposes both ErrExhausted and the last error
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

// Policy describes how many times and how slowly to retry
type Policy struct {
	// MaxAttempts is the total number of calls, including the first
	MaxAttempts int `yaml:"maxAttempts" default:"5"`
	// BaseDelay is the sleep before the first retry; it doubles on every retry
	BaseDelay time.Duration `yaml:"baseDelay" default:"1s"`
	// MaxDelay caps a single sleep. Zero means no cap.
	MaxDelay time.Duration `yaml:"maxDelay"`
	// Jitter stretches each sleep by up to 50%, keeping the schedule non-decreasing
	Jitter bool `yaml:"jitter"`

	// Classify decides whether an error is worth retrying. Nil treats all errors as transient.
	Classify func(error) Class `yaml:"-"`
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error `yaml:"-"`
	// OnRetry is called before each sleep
	OnRetry func(attempt int, delay time.Duration, err error) `yaml:"-"`
}

// Delay returns the sleep before retry n (0-based): BaseDelay * 2^n
func (p Policy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}

		d *= 2
	}

	if p.Jitter && d > 0 {
		d += time.Duration(rand.Int64N(int64(d)/2 + 1)) //nolint:gosec // jitter does not need crypto randomness
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	return d
}

// Do calls op until it succeeds, returns a permanent error, or MaxAttempts is reached.
// Permanent errors come back unchanged; exhaustion returns *ExhaustedError.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error

	for attempt := 0; attempt < attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return err
		}

		if p.Classify != nil && p.Classify(err) == Permanent {
			return err
		}

		if attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("retry interrupted: %w", errors.Join(sleepErr, err))
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: err}
}

// Value is Do for operations that return a value
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}

		out = v

		return nil
	})

	return out, err
}

// Sleep blocks for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
