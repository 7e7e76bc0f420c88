// Package storage provides the tab-scoped key/value store behind the profile
// cache.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("key not found")

// ErrQuotaExceeded is returned by Set when the store is full.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("storage unavailable")

// Store is a small string key/value store. Implementations must be safe for
// concurrent use. Callers are expected to degrade to "no cache" on any error.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
