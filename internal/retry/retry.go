// Package retry is the one retrying-fetch helper used for remote profile
// lookups. Attempts, backoff and the retryable predicate are all on Policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgellow/grant-intake/internal/log"
)

// Policy controls Do.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

// DefaultPolicy is three attempts starting at 250ms.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// ExhaustedError reports the final error after every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all retry attempts failed (tried %d times): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls op until it succeeds, returns a non-retryable error, runs out of
// attempts, or ctx ends. Errors from op are returned unwrapped except when
// attempts ran out, in which case they come wrapped in *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempts := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := op(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxAttempts)),
		// the caller bounds total time
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.LogDebugWithFields("retry", "Retrying after error", map[string]any{
				"attempt": attempts,
				"next":    next.String(),
				"error":   err.Error(),
			})
		}),
	)
	if err == nil {
		return v, nil
	}

	// backoff returns the permanent wrapper as-is when the last try was permanent
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return v, perm.Unwrap()
	}
	if ctx.Err() != nil || (p.Retryable != nil && !p.Retryable(err)) {
		return v, err
	}
	if attempts >= maxAttempts {
		return v, &ExhaustedError{Attempts: attempts, Err: err}
	}
	return v, err
}
