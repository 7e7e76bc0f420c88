// Package profile models the resolved user profile and its short-lived cache.
package profile

import (
	"context"
	"strings"
)

// Profile is the portal's view of the signed-in user.
type Profile struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	// Role is empty when unknown, as on a minimal profile.
	Role      string `json:"role,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Fetcher resolves the authoritative profile for a subject.
type Fetcher interface {
	FetchProfile(ctx context.Context, subject string) (*Profile, error)
}

// Minimal builds a placeholder profile from raw session claims so the
// portal can render before the authoritative profile arrives.
func Minimal(subject, email string) *Profile {
	return &Profile{
		ID:    subject,
		Email: normalizeEmail(email),
	}
}

// IsMinimal reports whether the role is still unknown.
func (p *Profile) IsMinimal() bool {
	return p.Role == ""
}

// DisplayName joins the name parts, falling back to the email.
func (p *Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
