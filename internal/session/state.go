package session

import "github.com/dgellow/grant-intake/internal/profile"

// Status is the orchestrator's coarse state.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// DefaultPrivilegedRole is the role that makes a profile privileged.
const DefaultPrivilegedRole = "admin"

// State is an immutable snapshot of the current user as seen by the rest of
// the application.
type State struct {
	Status  Status
	Profile *profile.Profile
	Loading bool
	// Subject is the raw session subject, set as soon as a session is known.
	Subject string
	// SessionExpired is set when a fatal credential error forced the sign-out.
	SessionExpired bool
	Privileged     bool
}

// IsAuthenticated reports whether a profile, minimal or full, is resolved.
func (s State) IsAuthenticated() bool {
	return s.Profile != nil
}

// IsPrivileged reports whether the resolved profile carries the privileged
// role.
func (s State) IsPrivileged() bool {
	return s.Privileged
}
