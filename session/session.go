// Package session provides server-side session management for the Portunus
// demo bank.
//
// The session package supports multiple storage backends:
//
//   - Memory: process-local map, used in development and tests
//   - Redis: serialized records in Redis, survives process restarts
//   - Custom: implement the Store interface for custom storage
//
// Records are opaque to their store. Each record carries the authenticated
// principal established by the login flow, an arbitrary payload, and the
// step-up marker consumed by the stepup package.
//
// # Usage
//
//	store := session.NewMemoryStore()
//
//	rec := session.NewRecord(uuid.NewString())
//	rec.Principal.Email = "jane@example.com"
//	store.Save(ctx, rec)
//
//	// Revocation-side enumeration
//	all, err := store.All(ctx)
package session

import (
	"strings"
	"time"
)

// Principal is the authenticated-principal reference attached to a session
// by the login flow. Which of the optional fields are populated depends on
// the identity provider's claim configuration.
type Principal struct {
	Subject           string       `json:"sub,omitempty"`
	Email             string       `json:"email,omitempty"`
	Emails            []string     `json:"emails,omitempty"`
	PreferredUsername string       `json:"preferred_username,omitempty"`
	Name              string       `json:"name,omitempty"`
	Profile           *ProfileData `json:"profile,omitempty"`
}

// ProfileData holds nested profile claims some providers emit instead of
// top-level ones.
type ProfileData struct {
	Email string `json:"email,omitempty"`
}

// Record is a single server-side session.
type Record struct {
	ID        string         `json:"id"`
	Principal Principal      `json:"principal"`
	Payload   map[string]any `json:"payload,omitempty"`

	// Step-up marker. MFAVerifiedAt is only meaningful when MFAVerified is
	// set; a stale marker is inert, never removed.
	MFAVerified   bool      `json:"mfa_verified"`
	MFAVerifiedAt time.Time `json:"mfa_verified_at"`

	// ReturnTo remembers the destination a step-up redirect interrupted.
	ReturnTo string `json:"return_to,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRecord creates a session record with the default lifetime.
func NewRecord(id string) *Record {
	now := time.Now()
	return &Record{
		ID:        id,
		Payload:   map[string]any{},
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

// emailExtractors are tried in priority order against a principal; the first
// non-empty result wins. Keep the order stable: primary email, emails array,
// nested profile email, preferred username.
var emailExtractors = []func(Principal) string{
	func(p Principal) string { return p.Email },
	func(p Principal) string {
		for _, e := range p.Emails {
			if e != "" {
				return e
			}
		}
		return ""
	},
	func(p Principal) string {
		if p.Profile != nil {
			return p.Profile.Email
		}
		return ""
	},
	func(p Principal) string { return p.PreferredUsername },
}

// PrimaryEmail returns the principal's best-known email address, or "" when
// no email-bearing field is populated.
func PrimaryEmail(p Principal) string {
	for _, extract := range emailExtractors {
		if email := extract(p); email != "" {
			return email
		}
	}
	return ""
}

// MatchesEmail reports whether any of the principal's email-bearing fields
// equals the given address, case-insensitively.
func MatchesEmail(p Principal, email string) bool {
	if email == "" {
		return false
	}
	for _, extract := range emailExtractors {
		if strings.EqualFold(extract(p), email) {
			return true
		}
	}
	for _, e := range p.Emails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}
