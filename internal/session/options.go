package session

import (
	"time"

	"github.com/dgellow/grant-intake/internal/retry"
)

// Timeouts bounds every remote and storage call the orchestrator makes.
type Timeouts struct {
	// Credential bounds the session lookup on a credential cache miss.
	Credential time.Duration
	// Session bounds the startup session lookup.
	Session time.Duration
	// Profile bounds a whole profile fetch, retries included.
	Profile time.Duration
	// Store bounds a single profile cache read or write.
	Store time.Duration
	// SignOut bounds the best-effort provider sign-out after a fatal error.
	SignOut time.Duration
}

// DefaultTimeouts returns the stock budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Credential: 2 * time.Second,
		Session:    5 * time.Second,
		Profile:    10 * time.Second,
		Store:      time.Second,
		SignOut:    5 * time.Second,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeouts replaces the default budgets. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(o *Orchestrator) {
		if t.Credential > 0 {
			o.timeouts.Credential = t.Credential
		}
		if t.Session > 0 {
			o.timeouts.Session = t.Session
		}
		if t.Profile > 0 {
			o.timeouts.Profile = t.Profile
		}
		if t.Store > 0 {
			o.timeouts.Store = t.Store
		}
		if t.SignOut > 0 {
			o.timeouts.SignOut = t.SignOut
		}
	}
}

// WithRetryPolicy sets the profile fetch retry policy. Fatal errors are never
// retried regardless of p.Retryable.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.retryPolicy = p
	}
}

// WithPrivilegedRole overrides DefaultPrivilegedRole.
func WithPrivilegedRole(role string) Option {
	return func(o *Orchestrator) {
		if role != "" {
			o.privilegedRole = role
		}
	}
}

// OnSessionExpired registers the hook run after a fatal credential error tore
// the session down, typically a redirect to sign-in. It runs on the event
// loop and must not block.
func OnSessionExpired(fn func()) Option {
	return func(o *Orchestrator) {
		o.onExpired = fn
	}
}
