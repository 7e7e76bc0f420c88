package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoped_PrefixesKeys(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	s := NewScoped(backing, "tab-1")

	require.NoError(t, s.Set(ctx, "grant-intake.profile", "data"))

	raw, err := backing.Get(ctx, "grant-intake.profile.tab-1")
	require.NoError(t, err)
	assert.Equal(t, "data", raw)

	v, err := s.Get(ctx, "grant-intake.profile")
	require.NoError(t, err)
	assert.Equal(t, "data", v)

	require.NoError(t, s.Remove(ctx, "grant-intake.profile"))
	_, err = backing.Get(ctx, "grant-intake.profile.tab-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScoped_IsolatesTabs(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryStore()
	a := NewScoped(backing, "")
	b := NewScoped(backing, "")

	_, err := uuid.Parse(a.Scope())
	require.NoError(t, err)
	assert.NotEqual(t, a.Scope(), b.Scope())

	require.NoError(t, a.Set(ctx, "k", "from-a"))
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}
