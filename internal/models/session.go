package models

import (
	"strings"
	"time"
)

// Identity is the authenticated user as reported by the identity API.
type Identity struct {
	Id       string            `json:"id"`
	Email    string            `json:"email"`
	Phone    string            `json:"phone,omitempty"`
	Metadata map[string]string `json:"user_metadata,omitempty"`
}

// DisplayName returns the identity's display name, falling back to the
// email local part when no metadata name was set.
func (i *Identity) DisplayName() string {
	if name := i.Metadata["display_name"]; name != "" {
		return name
	}
	if name := i.Metadata["full_name"]; name != "" {
		return name
	}
	return i.EmailLocalPart()
}

// EmailLocalPart returns the part of the email before the @, or the
// whole string when it is not an address.
func (i *Identity) EmailLocalPart() string {
	if at := strings.Index(i.Email, "@"); at > 0 {
		return i.Email[:at]
	}
	return i.Email
}

// Session is the authenticated-identity token pair plus expiry governing
// the current client instance. Exactly one session is active at a time:
// created on sign-in, replaced on token refresh, cleared on sign-out.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token's lifetime has elapsed.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// ExpiresWithin reports whether the token expires within d.
func (s *Session) ExpiresWithin(d time.Duration) bool {
	return !s.ExpiresAt.IsZero() && time.Now().Add(d).After(s.ExpiresAt)
}

// IsAdmin reports whether the session's email is in the configured admin
// list. Placeholder policy pending a real authorization model; the store
// enforces authorization server-side regardless.
func (s *Session) IsAdmin(adminEmails []string) bool {
	for _, email := range adminEmails {
		if email != "" && strings.EqualFold(email, s.User.Email) {
			return true
		}
	}
	return false
}
