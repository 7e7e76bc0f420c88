// Package backend looks up the authoritative user profile from the portal
// API.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/grant-intake/internal/ioutil"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/urlutil"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is parsed from a Retry-After header in seconds form.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("profile endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("profile endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// ErrEmptyProfile is returned when the endpoint answered without a profile id.
var ErrEmptyProfile = errors.New("profile response has no id")

// ProfileClient fetches profiles from {baseURL}/profiles/{subject}.
type ProfileClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ profile.Fetcher = (*ProfileClient)(nil)

// NewProfileClient returns a client. httpClient should carry the bearer
// token transport.
func NewProfileClient(baseURL string, httpClient *http.Client) (*ProfileClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseUrl is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ProfileClient{baseURL: baseURL, httpClient: httpClient}, nil
}

// FetchProfile returns the profile for subject.
func (c *ProfileClient) FetchProfile(ctx context.Context, subject string) (*profile.Profile, error) {
	endpoint, err := urlutil.JoinSegments(c.baseURL, "profiles", subject)
	if err != nil {
		return nil, fmt.Errorf("building profile URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Body:       ioutil.ReadLimited(resp.Body, ioutil.ErrorBodyLimit),
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			statusErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, statusErr
	}

	var p profile.Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	if p.ID == "" {
		return nil, ErrEmptyProfile
	}
	return &p, nil
}

// IsRetryable reports whether err is worth another attempt: network
// failures, 429 and 5xx responses.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
