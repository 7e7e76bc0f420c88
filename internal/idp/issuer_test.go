package idp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, sub, email string, exp time.Time) string {
	t.Helper()
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: testSigningKey}, nil)
	require.NoError(t, err)

	raw, err := jwt.Signed(sig).Claims(tokenClaims{
		Claims: jwt.Claims{Subject: sub, Expiry: jwt.NewNumericDate(exp)},
		Email:  email,
	}).Serialize()
	require.NoError(t, err)
	return raw
}

// fakeIssuer is a minimal OAuth2 token and revocation endpoint.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server

	mu            sync.Mutex
	expiresIn     int
	refreshError  string
	refreshStatus int
	tokenRequests []url.Values
	revoked       []string
	issued        int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	f := &fakeIssuer{t: t, expiresIn: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/revoke", f.handleRevoke)
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oidcDiscoveryDocument{
			Issuer:             f.server.URL,
			TokenEndpoint:      f.server.URL + "/token",
			RevocationEndpoint: f.server.URL + "/revoke",
		})
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) config() Config {
	return Config{
		TokenURL:      f.server.URL + "/token",
		RevocationURL: f.server.URL + "/revoke",
		ClientID:      "portal",
		ClientSecret:  "s3cret",
	}
}

func (f *fakeIssuer) setRefreshError(code string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshError = code
	f.refreshStatus = status
}

func (f *fakeIssuer) setExpiresIn(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiresIn = seconds
}

func (f *fakeIssuer) grants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tokenRequests))
	for _, v := range f.tokenRequests {
		out = append(out, v.Get("grant_type"))
	}
	return out
}

func (f *fakeIssuer) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeIssuer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.tokenRequests = append(f.tokenRequests, r.PostForm)
	refreshError, refreshStatus, expiresIn := f.refreshError, f.refreshStatus, f.expiresIn
	f.issued++
	n := f.issued
	f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") != "ada@example.com" || r.PostForm.Get("password") != "correct horse" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_grant",
				"error_description": "Invalid login credentials",
			})
			return
		}
	case "refresh_token":
		if refreshError != "" {
			status := refreshStatus
			if status == 0 {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]string{
				"error":             refreshError,
				"error_description": "refresh rejected",
			})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	exp := time.Now().Add(time.Duration(expiresIn) * time.Second)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  signToken(f.t, "user-1", "ada@example.com", exp),
		"token_type":    "Bearer",
		"refresh_token": "rt-" + string(rune('0'+n)),
		"expires_in":    expiresIn,
	})
}

func (f *fakeIssuer) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != "portal" || pass != "s3cret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	f.mu.Lock()
	f.revoked = append(f.revoked, r.PostForm.Get("token"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}
