// Package idp is an OAuth2/OIDC identity-provider client implementing
// identity.Provider with password sign-in, refresh-token renewal and RFC 7009
// revocation.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSession is returned when a refresh is attempted with nobody signed in.
	ErrNoSession = errors.New("no active session")
	// ErrSessionChanged is returned when the session was replaced or ended
	// while a refresh was in flight.
	ErrSessionChanged = errors.New("session changed during refresh")
)

const (
	defaultRefreshLeeway = 90 * time.Second
	defaultRetryInterval = 30 * time.Second
	autoRefreshTimeout   = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// DiscoveryURL points at /.well-known/openid-configuration. Optional if
	// TokenURL is set.
	DiscoveryURL  string
	TokenURL      string
	RevocationURL string

	ClientID     string
	ClientSecret string
	Scopes       []string

	// RefreshLeeway is how long before expiry a token is renewed.
	RefreshLeeway time.Duration
	// RetryInterval spaces automatic refresh attempts after a transient failure.
	RetryInterval time.Duration

	HTTPClient *http.Client
}

// Client is a relying-party session holder for a single user.
type Client struct {
	oauth         oauth2.Config
	revocationURL string
	httpClient    *http.Client
	leeway        time.Duration
	retryInterval time.Duration
	now           func() time.Time

	hub   identity.Hub
	group singleflight.Group

	mu         sync.Mutex
	token      *oauth2.Token
	session    *identity.Session
	generation uint64
	obtainedAt time.Time
	retryAfter time.Time

	wake     chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
	started  bool
}

var (
	_ identity.Provider              = (*Client)(nil)
	_ identity.PasswordAuthenticator = (*Client)(nil)
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a client, fetching the discovery document when configured.
func NewClient(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("clientId is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	tokenURL, revocationURL := cfg.TokenURL, cfg.RevocationURL
	if cfg.DiscoveryURL != "" {
		discovery, err := fetchOIDCDiscovery(ctx, httpClient, cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		tokenURL = discovery.TokenEndpoint
		if revocationURL == "" {
			revocationURL = discovery.RevocationEndpoint
		}
	} else if tokenURL == "" {
		return nil, fmt.Errorf("either discoveryUrl or tokenUrl must be provided")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile", "offline_access"}
	}

	// fixed so a rejected refresh is never retried with the other style
	authStyle := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}

	c := &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: authStyle,
			},
		},
		revocationURL: revocationURL,
		httpClient:    httpClient,
		leeway:        cfg.RefreshLeeway,
		retryInterval: cfg.RetryInterval,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
	if c.leeway <= 0 {
		c.leeway = defaultRefreshLeeway
	}
	if c.retryInterval <= 0 {
		c.retryInterval = defaultRetryInterval
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Restore seeds a session from a persisted refresh token. Nothing is fetched
// until the next GetSession.
func (c *Client) Restore(refreshToken string) {
	if refreshToken == "" {
		return
	}
	c.mu.Lock()
	c.generation++
	c.token = &oauth2.Token{RefreshToken: refreshToken}
	c.session = nil
	c.retryAfter = time.Time{}
	c.mu.Unlock()
	c.poke()
}

// SignInWithPassword runs the resource owner password grant and emits
// signed_in.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), email, password)
	if err != nil {
		return nil, fmt.Errorf("password sign-in: %w", err)
	}

	sess, err := sessionFromToken(tok)
	if err != nil {
		return nil, fmt.Errorf("password sign-in: %w", err)
	}

	c.mu.Lock()
	c.generation++
	c.token = tok
	c.session = sess
	c.obtainedAt = c.now()
	c.retryAfter = time.Time{}
	c.mu.Unlock()
	c.poke()

	log.LogInfoWithFields("idp", "Signed in", map[string]any{
		"subject": sess.Subject,
	})

	c.hub.Emit(identity.Event{Kind: identity.SignedIn, Session: copySession(sess)})
	return copySession(sess), nil
}

// GetSession returns the current session, refreshing it first when it is
// within the refresh leeway of expiry.
func (c *Client) GetSession(ctx context.Context) (*identity.Session, error) {
	c.mu.Lock()
	tok, sess := c.token, c.session
	var due time.Time
	if sess != nil {
		due = c.refreshDueLocked()
	}
	c.mu.Unlock()

	if tok == nil {
		return nil, nil
	}
	if sess != nil && c.now().Before(due) {
		return copySession(sess), nil
	}
	return c.refresh(ctx)
}

// Subscribe registers h and immediately delivers an initial_session event
// carrying the current session, which may be nil.
func (c *Client) Subscribe(h identity.EventHandler) func() {
	c.mu.Lock()
	sess := copySession(c.session)
	c.mu.Unlock()

	return c.hub.Subscribe(h, identity.Event{Kind: identity.InitialSession, Session: sess})
}

// SignOut drops the local session and emits signed_out. With global scope the
// refresh token is also revoked at the revocation endpoint, when one is
// configured; a revocation failure is returned after local state is gone.
func (c *Client) SignOut(ctx context.Context, scope identity.Scope) error {
	switch scope {
	case identity.ScopeGlobal, identity.ScopeLocal, "":
	default:
		return fmt.Errorf("sign-out scope %q is not supported", scope)
	}

	c.mu.Lock()
	tok := c.token
	c.dropLocked()
	c.mu.Unlock()
	c.poke()

	c.hub.Emit(identity.Event{Kind: identity.SignedOut})

	if scope == identity.ScopeLocal || tok == nil || tok.RefreshToken == "" || c.revocationURL == "" {
		return nil
	}
	return c.revoke(ctx, tok.RefreshToken)
}

func (c *Client) refresh(ctx context.Context) (*identity.Session, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.doRefresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return copySession(v.(*identity.Session)), nil
}

func (c *Client) doRefresh(ctx context.Context) (*identity.Session, error) {
	c.mu.Lock()
	tok, gen := c.token, c.generation
	c.mu.Unlock()

	if tok == nil {
		return nil, ErrNoSession
	}
	if tok.RefreshToken == "" {
		return nil, &autherr.ProviderError{
			Code:    autherr.CodeSessionNotFound,
			Message: "session has no refresh token",
		}
	}

	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken})
	next, err := src.Token()
	if err != nil {
		if autherr.IsFatal(err) {
			// the refresh token is dead; forget it so nothing retries with it
			c.mu.Lock()
			if c.generation == gen {
				c.dropLocked()
			}
			c.mu.Unlock()
			c.poke()
		}
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	sess, err := sessionFromToken(next)
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, ErrSessionChanged
	}
	c.token = next
	c.session = sess
	c.obtainedAt = c.now()
	c.retryAfter = time.Time{}
	c.mu.Unlock()
	c.poke()

	log.LogDebugWithFields("idp", "Session refreshed", map[string]any{
		"subject":    sess.Subject,
		"expires_at": sess.ExpiresAt,
	})

	c.hub.Emit(identity.Event{Kind: identity.TokenRefreshed, Session: copySession(sess)})
	return sess, nil
}

// refreshDueLocked returns when the held session should be renewed: the
// leeway before expiry, or halfway through the lifetime of tokens that live
// shorter than the leeway. c.mu must be held and c.session set.
func (c *Client) refreshDueLocked() time.Time {
	due := c.session.ExpiresAt.Add(-c.leeway)
	if !c.obtainedAt.IsZero() && due.Before(c.obtainedAt) {
		due = c.obtainedAt.Add(c.session.ExpiresAt.Sub(c.obtainedAt) / 2)
	}
	return due
}

// dropLocked forgets the session. c.mu must be held.
func (c *Client) dropLocked() {
	c.generation++
	c.token = nil
	c.session = nil
	c.obtainedAt = time.Time{}
	c.retryAfter = time.Time{}
}

func (c *Client) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func copySession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
