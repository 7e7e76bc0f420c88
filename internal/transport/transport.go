// Package transport attaches the session's bearer token to outgoing requests.
package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/dgellow/grant-intake/internal/log"
	"golang.org/x/oauth2"
)

// TokenSource yields the access token to send, refreshing if it must.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// AccessToken calls f(ctx).
func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// Transport is an http.RoundTripper that sets the Authorization header from
// Source. When no token can be produced the request goes out without one and
// the server's 401 reaches the caller like any other response.
type Transport struct {
	Base   http.RoundTripper
	Source TokenSource
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Source.AccessToken(req.Context())
	if err != nil || token == "" {
		fields := map[string]any{
			"host": req.URL.Host,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.LogDebugWithFields("transport", "Sending request without credentials", fields)
		return t.base().RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	out := req.Clone(req.Context())
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(out)
	return t.base().RoundTrip(out)
}

// NewClient returns an *http.Client decorated with Transport.
func NewClient(source TokenSource, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &Transport{Source: source},
		Timeout:   timeout,
	}
}
