package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinSegments(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		segments []string
		want     string
		wantErr  bool
	}{
		{
			name:     "simple join",
			base:     "https://api.example.com",
			segments: []string{"profiles", "user-1"},
			want:     "https://api.example.com/profiles/user-1",
		},
		{
			name:     "base with path",
			base:     "https://example.com/rest/v1",
			segments: []string{"profiles", "user-1"},
			want:     "https://example.com/rest/v1/profiles/user-1",
		},
		{
			name:     "base with trailing slash",
			base:     "https://example.com/",
			segments: []string{"profiles"},
			want:     "https://example.com/profiles",
		},
		{
			name:     "segment is escaped",
			base:     "https://example.com",
			segments: []string{"profiles", "a/b?c"},
			want:     "https://example.com/profiles/a%2Fb%3Fc",
		},
		{
			name:     "empty segments",
			base:     "https://example.com",
			segments: nil,
			want:     "https://example.com",
		},
		{
			name:     "invalid base URL",
			base:     "://invalid",
			segments: []string{"profiles"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinSegments(tt.base, tt.segments...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWellKnown(t *testing.T) {
	got, err := WellKnown("https://auth.example.com/realms/portal")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/realms/portal/.well-known/openid-configuration", got)
}
