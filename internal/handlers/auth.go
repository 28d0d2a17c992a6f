package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/handlers/render"
	"github.com/avoronov/agentgate/internal/handlers/sessionctx"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/models"
)

type sessionService interface {
	// Resolve an existing session or start a fresh one
	GetOrBegin(ctx context.Context, id uuid.UUID) (models.Session, error)

	// Resolve session by id
	// Has to return apperrors.ErrSessionNotFound for unknown ids
	Get(ctx context.Context, id uuid.UUID) (models.Session, error)

	// Store the token set carried by the redirect fragment.
	// Returns false without touching state when no access token is present
	StoreTokens(ctx context.Context, id uuid.UUID, fragment string) (bool, error)

	// Drop the session. Idempotent
	Clear(ctx context.Context, id uuid.UUID) error

	// Record the denied navigation target, creating a session if needed
	RememberReturnURL(ctx context.Context, id uuid.UUID, target string) (models.Session, error)

	// Read the pending post-login target once and clear it
	ConsumeReturnURL(ctx context.Context, id uuid.UUID) string
}

type hostedUI interface {
	LoginURL() string
	LogoutURL() string
}

type AuthHandler struct {
	sessions sessionService
	hosted   hostedUI
	logger   logger.Logger
}

func NewAuth(sessions sessionService, hosted hostedUI, l logger.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		hosted:   hosted,
		logger:   l,
	}
}

func (h *AuthHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", h.login)
	mux.HandleFunc("GET /logout", h.logout)
	mux.HandleFunc("GET /callback", h.callback)
	mux.HandleFunc("POST /callback", h.callback)
	mux.HandleFunc("GET /session", h.session)

	return mux
}

// login seats the browser with a session cookie and hands it off to the
// hosted UI login page
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetOrBegin(r.Context(), sessionctx.IDFromRequest(r))
	if err != nil {
		h.logger.Error("cant seat session for login", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sessionctx.SetCookie(w, session.ID)
	http.Redirect(w, r, h.hosted.LoginURL(), http.StatusFound)
}

// logout clears the session on both sides: the store and the browser
// cookie, then sends the browser to the hosted UI logout page.
// Safe to repeat, a second logout is a no-op that still redirects.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	id := sessionctx.IDFromRequest(r)
	if err := h.sessions.Clear(r.Context(), id); err != nil {
		// Browser logout proceeds anyway, the store row expires on its own
		h.logger.Error("cant clear session on logout", "error", err, "session_id", id)
	}

	sessionctx.ExpireCookie(w)
	http.Redirect(w, r, h.hosted.LogoutURL(), http.StatusFound)
}

// callback receives the token fragment forwarded by the redirect page.
// The hosted UI puts tokens into the URL fragment, which never reaches
// the server on its own, so the callback page forwards it verbatim as a
// form field (POST) or query parameter (GET).
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		render.ServiceError(w, "Malformed callback", http.StatusBadRequest)
		return
	}
	fragment := r.Form.Get("fragment")

	session, err := h.sessions.GetOrBegin(r.Context(), sessionctx.IDFromRequest(r))
	if err != nil {
		h.logger.Error("cant seat session for callback", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	sessionctx.SetCookie(w, session.ID)

	ok, err := h.sessions.StoreTokens(r.Context(), session.ID, fragment)
	if err != nil {
		h.logger.Error("cant store callback tokens", "error", err, "session_id", session.ID)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Tokenless callback is a soft failure: state untouched, back to login
	if !ok {
		http.Redirect(w, r, h.hosted.LoginURL(), http.StatusSeeOther)
		return
	}

	target := h.sessions.ConsumeReturnURL(r.Context(), session.ID)
	if target == "" {
		target = "/"
	}

	// 303 turns a POSTed fragment into a clean GET, the redirect target
	// carries no token material
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// session reports authenticated state for the frontend
func (h *AuthHandler) session(w http.ResponseWriter, r *http.Request) {
	type SessionResponse struct {
		Authenticated bool   `json:"authenticated"`
		SessionID     string `json:"session_id,omitempty"`
	}

	id := sessionctx.IDFromRequest(r)
	if id == uuid.Nil {
		render.JSON(w, SessionResponse{Authenticated: false})
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		render.JSON(w, SessionResponse{Authenticated: false})
		return
	}

	render.JSON(w, SessionResponse{
		Authenticated: session.Tokens.Authenticated(),
		SessionID:     session.ID.String(),
	})
}
