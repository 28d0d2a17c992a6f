package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenSet holds the tokens obtained from the hosted UI redirect.
// Replaced wholesale on every login, emptied on logout.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string

	// Decoded from the ID token 'exp' claim when present.
	// Zero when the claim is missing or undecodable: presence of
	// AccessToken alone decides whether the session counts as
	// authenticated, expiry is discovered authoritatively by the backend.
	ExpiresAt time.Time
}

// Authenticated reports whether the set carries a usable access token
func (t TokenSet) Authenticated() bool {
	return t.AccessToken != ""
}

// Session is one browser's state at the gateway.
// The session row exists before login: an anonymous session carries the
// pending return URL until the hosted UI redirects back with tokens.
type Session struct {
	ID     uuid.UUID
	Tokens TokenSet

	// Navigation target recorded when the guard denies access.
	// Read once after a successful callback, then cleared.
	ReturnURL string

	CreatedAt time.Time
}
