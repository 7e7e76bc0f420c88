package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/grant-intake/internal/backend"
	"github.com/dgellow/grant-intake/internal/config"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/session"
	"github.com/dgellow/grant-intake/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSessions struct {
	state     session.State
	refreshed int
}

func (f *fixedSessions) State() session.State          { return f.state }
func (f *fixedSessions) ForceRefresh()                 { f.refreshed++ }
func (f *fixedSessions) SignOut(context.Context) error { return nil }

func (f *fixedSessions) Watch() (<-chan session.State, func()) {
	ch := make(chan session.State, 1)
	ch <- f.state
	close(ch)
	return ch, func() {}
}

func TestSetupStorage_MemoryQuotaAndScope(t *testing.T) {
	store, closers, err := setupStorage(context.Background(), config.StorageConfig{
		Kind:  config.StorageKindMemory,
		Scope: "tab-1",
		Quota: 32,
	})
	require.NoError(t, err)
	assert.Empty(t, closers)

	scoped, ok := store.(*storage.Scoped)
	require.True(t, ok)
	assert.Equal(t, "tab-1", scoped.Scope())

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", "small"))
	err = store.Set(ctx, "k", strings.Repeat("x", 64))
	assert.ErrorIs(t, err, storage.ErrQuotaExceeded)
}

func TestSetupStorage_FreshScopePerProcess(t *testing.T) {
	a, _, err := setupStorage(context.Background(), config.StorageConfig{Kind: config.StorageKindMemory})
	require.NoError(t, err)
	b, _, err := setupStorage(context.Background(), config.StorageConfig{Kind: config.StorageKindMemory})
	require.NoError(t, err)

	assert.NotEmpty(t, a.(*storage.Scoped).Scope())
	assert.NotEqual(t, a.(*storage.Scoped).Scope(), b.(*storage.Scoped).Scope())
}

func TestSetupProfileCache_Encrypted(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := config.Config{
		Storage: config.StorageConfig{EncryptionKey: "exactly-32-bytes-long-encryptkey"},
		Cache:   config.CacheConfig{ProfileTTL: time.Hour},
	}

	cache, err := setupProfileCache(cfg, store)
	require.NoError(t, err)

	ctx := context.Background()
	p := &profile.Profile{ID: "user-1", Email: "applicant@example.org", Role: "applicant"}
	cache.Write(ctx, "user-1", p)

	raw, err := store.Get(ctx, profile.Key)
	require.NoError(t, err)
	assert.NotContains(t, raw, "applicant@example.org")

	got, ok := cache.Read(ctx, "user-1")
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestSetupProfileCache_BadKey(t *testing.T) {
	_, err := setupProfileCache(config.Config{
		Storage: config.StorageConfig{EncryptionKey: "short"},
	}, storage.NewMemoryStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid storage.encryptionKey")
}

func TestRetryPolicy(t *testing.T) {
	policy := retryPolicy(config.RetryConfig{})
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, policy.InitialInterval)

	policy = retryPolicy(config.RetryConfig{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: 4 * time.Second})
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.InitialInterval)
	assert.Equal(t, 4*time.Second, policy.MaxInterval)

	require.NotNil(t, policy.Retryable)
	assert.True(t, policy.Retryable(&backend.StatusError{StatusCode: http.StatusServiceUnavailable}))
	assert.False(t, policy.Retryable(&backend.StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, policy.Retryable(context.Canceled))
}

func TestBuildHTTPHandler(t *testing.T) {
	sessions := &fixedSessions{state: session.State{
		Status:  session.StatusAuthenticated,
		Subject: "user-1",
		Profile: &profile.Profile{ID: "user-1", Email: "applicant@example.org"},
	}}
	cfg := config.Config{Server: config.ServerConfig{AllowedOrigins: []string{"https://apply.example.org"}}}
	handler := buildHTTPHandler(cfg, sessions, nil)

	t.Run("health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	})

	t.Run("state with cors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/session", nil)
		req.Header.Set("Origin", "https://apply.example.org")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "https://apply.example.org", rr.Header().Get("Access-Control-Allow-Origin"))

		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "authenticated", body["status"])
		assert.Equal(t, true, body["isAuthenticated"])
	})

	t.Run("refresh", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/session/refresh", nil))
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, 1, sessions.refreshed)
	})

	t.Run("sign-in without authenticator", func(t *testing.T) {
		rr := httptest.NewRecorder()
		body := strings.NewReader(`{"email":"a@example.org","password":"pw"}`)
		req := httptest.NewRequest(http.MethodPost, "/session/signin", body)
		req.Header.Set("Content-Type", "application/json")
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotImplemented, rr.Code)
	})

	t.Run("events", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/session/events", nil))
		assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Body.String(), "event: session\n")
		assert.Contains(t, rr.Body.String(), `"subject":"user-1"`)
	})

	t.Run("unknown route", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestNewPortal(t *testing.T) {
	cfg := config.Config{
		Server: config.ServerConfig{Addr: "127.0.0.1:0"},
		Identity: config.IdentityConfig{
			TokenURL: "https://auth.example.org/oauth/token",
			ClientID: "intake-portal",
		},
		Backend: config.BackendConfig{BaseURL: "https://api.grants.example.org"},
		Storage: config.StorageConfig{Kind: config.StorageKindMemory},
	}

	p, err := NewPortal(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p.orchestrator)
	assert.Equal(t, session.StatusUninitialized, p.orchestrator.State().Status)
	assert.Empty(t, p.closers)
}

func TestNewPortal_InvalidIdentity(t *testing.T) {
	_, err := NewPortal(context.Background(), config.Config{
		Identity: config.IdentityConfig{ClientID: "intake-portal"},
		Backend:  config.BackendConfig{BaseURL: "https://api.grants.example.org"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity provider client")
}
