// Package retry provides a generic bounded-retry combinator.
//
// Call sites supply a Classifier that separates transient failures
// (retried with backoff) from permanent ones (returned immediately).
// Backoff grows per attempt with jitter to avoid synchronized retry
// storms, and is capped so one stuck item cannot stall a run.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Class is the outcome classification for a failed attempt.
type Class int

const (
	// Transient failures are expected to sometimes succeed on retry.
	Transient Class = iota

	// Permanent failures will not succeed without external intervention.
	Permanent
)

// Classifier decides whether an error is worth retrying.
type Classifier func(err error) Class

// Policy configures bounded retry behavior. These values are tuning
// knobs, not validated optima; they are surfaced as configuration.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Total attempts = 1 + MaxRetries.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the grown backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay per attempt. Values below 1 are treated
	// as the default.
	Multiplier float64

	// JitterFraction randomizes each delay by ±fraction (0.2 = ±20%).
	JitterFraction float64

	// AttemptTimeout bounds one attempt. Exceeding it classifies as
	// transient and is retried. Zero disables the per-attempt bound.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the default retry tuning.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		InitialDelay:   2 * time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.2,
		AttemptTimeout: 2 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

// ExhaustedError wraps the final failure after all attempts are spent.
type ExhaustedError struct {
	// Attempts is the total number of attempts made.
	Attempts int

	// Err is the error from the last attempt.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err wraps an *ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Do runs fn with bounded retries per the policy.
//
// The returned attempt count includes the first try. Permanent failures
// return after one classification; transient failures are retried until
// attempts are exhausted, at which point the last error is wrapped in an
// *ExhaustedError. Parent context cancellation always stops retrying.
func Do[T any](ctx context.Context, p Policy, classify Classifier, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	p = p.withDefaults()
	if classify == nil {
		classify = func(error) Class { return Permanent }
	}

	maxAttempts := 1 + p.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, err
		}

		result, err := runAttempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		// The caller going away looks identical to an attempt deadline;
		// distinguish by the parent context.
		if ctx.Err() != nil {
			return zero, attempt, ctx.Err()
		}

		if classify(err) == Permanent {
			return zero, attempt, err
		}

		if attempt == maxAttempts {
			break
		}

		if err := sleep(ctx, p.delay(attempt)); err != nil {
			return zero, attempt, err
		}
	}

	return zero, maxAttempts, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

// runAttempt executes fn under the per-attempt timeout.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

// delay computes the jittered backoff before the retry following the
// given attempt number (1-based).
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}

	if p.JitterFraction > 0 {
		// Uniform in [1-j, 1+j].
		d *= 1 + p.JitterFraction*(2*rand.Float64()-1)
	}

	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
