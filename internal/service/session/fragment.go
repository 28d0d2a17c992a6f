package session

import (
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avoronov/agentgate/internal/models"
)

// Fragment keys set by the hosted UI on the implicit grant redirect
const (
	keyAccessToken  = "access_token"
	keyIDToken      = "id_token"
	keyRefreshToken = "refresh_token"
)

// ParseFragment reads the redirect fragment as x-www-form-urlencoded pairs.
// A leading '#' is tolerated so callers may pass the fragment verbatim.
// Returns ok=false when the fragment is empty, unparsable or carries no
// access_token: the caller must leave session state untouched then.
func ParseFragment(fragment string) (models.TokenSet, bool) {
	fragment = strings.TrimPrefix(fragment, "#")
	if fragment == "" {
		return models.TokenSet{}, false
	}

	values, err := url.ParseQuery(fragment)
	if err != nil {
		return models.TokenSet{}, false
	}

	access := values.Get(keyAccessToken)
	if access == "" {
		return models.TokenSet{}, false
	}

	set := models.TokenSet{
		AccessToken:  access,
		IDToken:      values.Get(keyIDToken),
		RefreshToken: values.Get(keyRefreshToken),
	}
	set.ExpiresAt = decodeExpiry(set.IDToken)

	return set, true
}

// decodeExpiry reads the 'exp' claim from the ID token without verifying
// the signature. The token is opaque to the gateway and the backend stays
// the authority, the claim only helps to report sessions that are known stale.
func decodeExpiry(idToken string) time.Time {
	if idToken == "" {
		return time.Time{}
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
