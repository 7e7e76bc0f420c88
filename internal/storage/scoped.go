package storage

import (
	"context"

	"github.com/google/uuid"
)

// Scoped prefixes every key with a scope id, isolating one "tab" (one
// process, by default) from another sharing the same backing store.
type Scoped struct {
	store Store
	scope string
}

var _ Store = (*Scoped)(nil)

// NewScoped wraps store. An empty scope gets a fresh random id.
func NewScoped(store Store, scope string) *Scoped {
	if scope == "" {
		scope = uuid.NewString()
	}
	return &Scoped{store: store, scope: scope}
}

// Scope returns the scope id.
func (s *Scoped) Scope() string {
	return s.scope
}

func (s *Scoped) key(k string) string {
	return k + "." + s.scope
}

func (s *Scoped) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.key(key))
}

func (s *Scoped) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value)
}

func (s *Scoped) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, s.key(key))
}
