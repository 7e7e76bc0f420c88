package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/ioutil"
)

type revocationError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// revoke invalidates a refresh token at the RFC 7009 endpoint.
func (c *Client) revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
	}
	if c.oauth.ClientSecret == "" {
		form.Set("client_id", c.oauth.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.oauth.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(c.oauth.ClientID), url.QueryEscape(c.oauth.ClientSecret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit)
	provErr := &autherr.ProviderError{Status: resp.StatusCode}
	var parsed revocationError
	if json.Unmarshal([]byte(body), &parsed) == nil && parsed.Error != "" {
		provErr.Code = parsed.Error
		provErr.Message = parsed.ErrorDescription
	} else {
		provErr.Message = fmt.Sprintf("revocation endpoint returned status %d: %s", resp.StatusCode, body)
	}
	return fmt.Errorf("revoking token: %w", provErr)
}
