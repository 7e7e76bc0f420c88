package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/grant-intake/internal/autherr"
	"github.com/dgellow/grant-intake/internal/identity"
	jsonwriter "github.com/dgellow/grant-intake/internal/json"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/session"
)

// SessionController is the part of the session orchestrator the HTTP
// surface drives.
type SessionController interface {
	State() session.State
	ForceRefresh()
	SignOut(ctx context.Context) error
}

// SessionHandlers serves the local session API consumed by the portal
// frontend.
type SessionHandlers struct {
	sessions      SessionController
	authenticator identity.PasswordAuthenticator
	signInTimeout time.Duration
}

// NewSessionHandlers creates the handlers. authenticator may be nil, in which
// case password sign-in answers 501.
func NewSessionHandlers(sessions SessionController, authenticator identity.PasswordAuthenticator) *SessionHandlers {
	return &SessionHandlers{
		sessions:      sessions,
		authenticator: authenticator,
		signInTimeout: 15 * time.Second,
	}
}

type sessionResponse struct {
	Status          session.Status   `json:"status"`
	Profile         *profile.Profile `json:"profile"`
	DisplayName     string           `json:"displayName,omitempty"`
	Loading         bool             `json:"loading"`
	Subject         string           `json:"subject,omitempty"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	IsPrivileged    bool             `json:"isPrivileged"`
	SessionExpired  bool             `json:"sessionExpired"`
}

func newSessionResponse(s session.State) sessionResponse {
	resp := sessionResponse{
		Status:          s.Status,
		Profile:         s.Profile,
		Loading:         s.Loading,
		Subject:         s.Subject,
		IsAuthenticated: s.IsAuthenticated(),
		IsPrivileged:    s.IsPrivileged(),
		SessionExpired:  s.SessionExpired,
	}
	if s.Profile != nil {
		resp.DisplayName = s.Profile.DisplayName()
	}
	return resp
}

// StateHandler handles GET /session
func (h *SessionHandlers) StateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}
	_ = jsonwriter.Write(w, newSessionResponse(h.sessions.State()))
}

// RefreshHandler handles POST /session/refresh
func (h *SessionHandlers) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}

	if !h.sessions.State().IsAuthenticated() {
		jsonwriter.WriteUnauthorized(w, "No active session")
		return
	}

	h.sessions.ForceRefresh()
	_ = jsonwriter.WriteResponse(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInHandler handles POST /session/signin
func (h *SessionHandlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}
	if h.authenticator == nil {
		jsonwriter.WriteNotImplemented(w, "Password sign-in is not supported by the identity provider")
		return
	}

	var req signInRequest
	if err := jsonwriter.Decode(w, r, &req); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		jsonwriter.WriteBadRequest(w, "email and password are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.signInTimeout)
	defer cancel()

	sess, err := h.authenticator.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		if autherr.IsFatal(err) {
			log.LogInfoWithFields("session_api", "Sign-in rejected", map[string]any{
				"email": req.Email,
			})
			jsonwriter.WriteUnauthorized(w, "Invalid email or password")
			return
		}
		log.LogWarnWithFields("session_api", "Sign-in failed", map[string]any{
			"email": req.Email,
			"error": err.Error(),
		})
		jsonwriter.WriteBadGateway(w, "Identity provider unavailable")
		return
	}

	_ = jsonwriter.Write(w, map[string]any{
		"signedIn":  true,
		"subject":   sess.Subject,
		"expiresAt": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// SignOutHandler handles POST /session/signout. Local state is always
// cleared; revoked reports whether the provider confirmed the global
// sign-out.
func (h *SessionHandlers) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodPost)
		return
	}

	err := h.sessions.SignOut(r.Context())
	if err != nil {
		log.LogWarnWithFields("session_api", "Sign-out was only local", map[string]any{
			"error": err.Error(),
		})
	}

	_ = jsonwriter.Write(w, map[string]bool{
		"signedOut": true,
		"revoked":   err == nil,
	})
}
