// Package credential holds the in-memory access token for the signed-in user.
package credential

import (
	"sync"
	"time"
)

// DefaultRefreshMargin is how long before expiry a token stops being served
// as fresh.
const DefaultRefreshMargin = 60 * time.Second

// Cache is a {token, expiry} pair with refresh-ahead semantics.
//
// Writes come from the session orchestrator. Reads come from any goroutine
// issuing outgoing requests.
type Cache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	margin time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithRefreshMargin overrides DefaultRefreshMargin.
func WithRefreshMargin(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.margin = d
		}
	}
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		margin: DefaultRefreshMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the token if one is cached and the clock is still before
// expiresAt minus the refresh margin.
func (c *Cache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return "", false
	}
	if !c.now().Before(c.expiresAt.Add(-c.margin)) {
		return "", false
	}
	return c.token, true
}

// Stale returns whatever token is cached, expired or not.
func (c *Cache) Stale() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.token != ""
}

// ExpiresAt returns the expiry of the cached token, or the zero time.
func (c *Cache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

// Set overwrites the cached token unconditionally.
func (c *Cache) Set(token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = expiresAt
}

// Clear empties the cache. Clearing an empty cache is a no-op.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
