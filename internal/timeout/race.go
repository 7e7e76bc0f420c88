// Package timeout bounds remote calls with a hard deadline.
//
// Race does not cancel the losing operation. The operation keeps running on
// its own goroutine and its eventual result is dropped, so callers must gate
// any state write that follows a raced call behind a freshness check.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimedOut is returned when the deadline elapses before the operation settles.
var ErrTimedOut = errors.New("operation timed out")

type result[T any] struct {
	value T
	err   error
}

// Race runs op and returns whichever settles first: the operation's own
// outcome, a timeout after d, or the caller's context ending. A d of zero or
// less disables the deadline.
//
// op receives a context that is not cancelled when the deadline fires; it is
// only cancelled when the caller's ctx is.
func Race[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	// buffered so a late completion never blocks the op goroutine
	done := make(chan result[T], 1)
	go func() {
		v, err := op(ctx)
		done <- result[T]{value: v, err: err}
	}()

	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-expired:
		return zero, fmt.Errorf("%w after %s", ErrTimedOut, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// IsTimeout reports whether err came from an elapsed Race deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimedOut)
}
