package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profiles/user-1", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"user-1","email":"ada@example.com","first_name":"Ada","last_name":"Lovelace","role":"admin","avatar_url":"https://cdn.example.com/ada.png"}`)
	}))
	defer server.Close()

	c, err := NewProfileClient(server.URL+"/api", server.Client())
	require.NoError(t, err)

	p, err := c.FetchProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.ID)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Lovelace", p.LastName)
	assert.Equal(t, "admin", p.Role)
	assert.Equal(t, "https://cdn.example.com/ada.png", p.AvatarURL)
}

func TestFetchProfile_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			}))
			defer server.Close()

			c, err := NewProfileClient(server.URL, server.Client())
			require.NoError(t, err)

			_, err = c.FetchProfile(context.Background(), "user-1")
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, `{"message":"nope"}`, statusErr.Body)
			assert.Equal(t, 3*time.Second, statusErr.RetryAfter)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestFetchProfile_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":`)
	}))
	defer server.Close()

	c, err := NewProfileClient(server.URL, server.Client())
	require.NoError(t, err)

	_, err = c.FetchProfile(context.Background(), "user-1")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestFetchProfile_EmptyProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	c, err := NewProfileClient(server.URL, server.Client())
	require.NoError(t, err)

	_, err = c.FetchProfile(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrEmptyProfile)
}

func TestFetchProfile_NetworkErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c, err := NewProfileClient(url, &http.Client{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.FetchProfile(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsRetryable(&net.OpError{Op: "dial", Err: errors.New("refused")}))
}

func TestNewProfileClient_RequiresBaseURL(t *testing.T) {
	_, err := NewProfileClient("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baseUrl is required")
}
