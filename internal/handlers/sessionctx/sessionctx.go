// Package sessionctx carries the browser session across request
// boundaries: the cookie on the wire and the value in the context.
package sessionctx

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/models"
)

// CookieName identifies the session cookie the gateway issues
const CookieName = "agentgate_session"

// cookieTTL matches the store-side session TTL
const cookieTTL = 24 * time.Hour

type ctxKey string

const sessionKey ctxKey = "session"

// Create a new context with the session
func New(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// Extract the session from the context
func FromContext(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(sessionKey).(models.Session)
	return s, ok
}

// IDFromRequest reads the session id cookie.
// Absent or malformed cookie maps to uuid.Nil.
func IDFromRequest(r *http.Request) uuid.UUID {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return uuid.Nil
	}

	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// SetCookie binds the session to the browser.
// SameSite is Lax so the cookie survives the top-level redirect back
// from the hosted UI.
func SetCookie(w http.ResponseWriter, id uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id.String(),
		Path:     "/",
		MaxAge:   int(cookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ExpireCookie drops the session cookie from the browser
func ExpireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
