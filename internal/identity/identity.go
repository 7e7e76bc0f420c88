// Package identity defines the contract between the session layer and an
// identity provider.
package identity

import (
	"context"
	"time"
)

// Session is the provider's view of a signed-in user. The refresh credential
// stays inside the provider.
type Session struct {
	Subject     string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

// EventKind names a provider push event.
type EventKind string

const (
	SignedIn       EventKind = "signed_in"
	SignedOut      EventKind = "signed_out"
	TokenRefreshed EventKind = "token_refreshed"
	InitialSession EventKind = "initial_session"
	UserUpdated    EventKind = "user_updated"
)

// Event is pushed by a provider. Session is nil for SignedOut and for an
// InitialSession with nobody signed in. Err is set when a background provider
// operation, such as an automatic refresh, failed.
type Event struct {
	Kind    EventKind
	Session *Session
	Err     error
}

// EventHandler receives provider events in emission order. It must not block.
type EventHandler func(Event)

// Scope selects which sessions SignOut ends.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
	ScopeOthers Scope = "others"
)

// Provider is the identity-provider client consumed by the session layer.
type Provider interface {
	// GetSession returns the current session, refreshing it if needed.
	// A nil session with a nil error means nobody is signed in.
	GetSession(ctx context.Context) (*Session, error)
	// Subscribe registers h and returns a function that removes it.
	Subscribe(h EventHandler) (unsubscribe func())
	SignOut(ctx context.Context, scope Scope) error
}

// PasswordAuthenticator is implemented by providers that accept email and
// password sign-in.
type PasswordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
}
