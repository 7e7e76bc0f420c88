package idp

import (
	"context"
	"net/http"

	"github.com/dgellow/grant-intake/internal/config"
)

// NewFromConfig creates a Client from the identity section and restores the
// configured refresh token, if any.
func NewFromConfig(ctx context.Context, cfg config.IdentityConfig, httpClient *http.Client) (*Client, error) {
	c, err := NewClient(ctx, Config{
		DiscoveryURL:  cfg.DiscoveryURL,
		TokenURL:      cfg.TokenURL,
		RevocationURL: cfg.RevocationURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  string(cfg.ClientSecret),
		Scopes:        cfg.Scopes,
		RefreshLeeway: cfg.RefreshLeeway,
		HTTPClient:    httpClient,
	})
	if err != nil {
		return nil, err
	}

	if cfg.RefreshToken != "" {
		c.Restore(string(cfg.RefreshToken))
	}
	return c, nil
}
