package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, s.Remove(ctx, "k"))
	require.NoError(t, s.Remove(ctx, "k"), "removing twice is a no-op")
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Quota(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithQuota(10))

	require.NoError(t, s.Set(ctx, "ab", "12345678"))
	assert.ErrorIs(t, s.Set(ctx, "c", "x"), ErrQuotaExceeded)

	// overwriting releases the old value's bytes first
	require.NoError(t, s.Set(ctx, "ab", "87654321"))

	require.NoError(t, s.Remove(ctx, "ab"))
	require.NoError(t, s.Set(ctx, "c", "x"))
}
