package main

import (
	"path/filepath"
	"testing"

	"github.com/dgellow/grant-intake/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultConfig_Validates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	result, err := config.ValidateFile(path)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.NoError(t, validateConfig(path))
}

func TestGenerateDefaultConfig_Loads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, generateDefaultConfig(path))

	t.Setenv("IDP_CLIENT_SECRET", "secret")
	t.Setenv("IDP_REFRESH_TOKEN", "rt")
	t.Setenv("PROFILE_ENCRYPTION_KEY", "exactly-32-bytes-long-encryptkey")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Secret("rt"), cfg.Identity.RefreshToken)
	assert.Equal(t, "https://auth.yourfoundation.org/.well-known/openid-configuration", cfg.Identity.DiscoveryURL)
}
