package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/grant-intake/internal/crypto"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/storage"
)

const (
	// Key is the store key. A storage.Scoped store appends the tab scope.
	Key = "grant-intake.profile"
	// DefaultTTL bounds how long a cached profile may be shown.
	DefaultTTL = 5 * time.Minute
)

type entry struct {
	Subject   string    `json:"subject"`
	Profile   *Profile  `json:"profile"`
	WrittenAt time.Time `json:"written_at"`
}

// Cache is a time-boxed, subject-keyed profile cache over a storage.Store.
//
// Every failure of the underlying store is logged and treated as a miss, so
// callers never see a storage error.
type Cache struct {
	store     storage.Store
	ttl       time.Duration
	now       func() time.Time
	encryptor crypto.Encryptor
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithEncryptor seals entries at rest.
func WithEncryptor(enc crypto.Encryptor) CacheOption {
	return func(c *Cache) {
		c.encryptor = enc
	}
}

// NewCache returns a cache over store.
func NewCache(store storage.Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the cached profile for subject if one was written for that
// subject less than the TTL ago. A matching but expired entry is evicted.
func (c *Cache) Read(ctx context.Context, subject string) (*Profile, bool) {
	if subject == "" {
		return nil, false
	}

	raw, err := c.store.Get(ctx, Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.LogWarnWithFields("profile_cache", "Profile cache read failed", map[string]any{
				"error": err.Error(),
			})
		}
		return nil, false
	}

	e, err := c.decode(raw)
	if err != nil {
		log.LogWarnWithFields("profile_cache", "Discarding unreadable profile cache entry", map[string]any{
			"error": err.Error(),
		})
		c.remove(ctx)
		return nil, false
	}

	if e.Subject != subject {
		return nil, false
	}

	if c.now().Sub(e.WrittenAt) >= c.ttl {
		log.LogDebugWithFields("profile_cache", "Evicting expired profile", map[string]any{
			"subject": subject,
			"age":     c.now().Sub(e.WrittenAt).String(),
		})
		c.remove(ctx)
		return nil, false
	}

	p := *e.Profile
	return &p, true
}

// Write stores p for subject, stamped with the current time.
func (c *Cache) Write(ctx context.Context, subject string, p *Profile) {
	if subject == "" || p == nil {
		return
	}

	raw, err := c.encode(entry{Subject: subject, Profile: p, WrittenAt: c.now()})
	if err != nil {
		log.LogWarnWithFields("profile_cache", "Failed to encode profile cache entry", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if err := c.store.Set(ctx, Key, raw); err != nil {
		log.LogWarnWithFields("profile_cache", "Profile cache write failed", map[string]any{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

// Clear removes any cached profile. Clearing an empty cache is a no-op.
func (c *Cache) Clear(ctx context.Context) {
	c.remove(ctx)
}

func (c *Cache) remove(ctx context.Context) {
	if err := c.store.Remove(ctx, Key); err != nil {
		log.LogWarnWithFields("profile_cache", "Profile cache remove failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (c *Cache) encode(e entry) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	if c.encryptor == nil {
		return string(b), nil
	}
	return c.encryptor.Encrypt(string(b))
}

func (c *Cache) decode(raw string) (*entry, error) {
	if c.encryptor != nil {
		plain, err := c.encryptor.Decrypt(raw)
		if err != nil {
			return nil, err
		}
		raw = plain
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decoding entry: %w", err)
	}
	if e.Profile == nil {
		return nil, fmt.Errorf("entry has no profile")
	}
	return &e, nil
}
