package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/handlers/render"
	"github.com/avoronov/agentgate/internal/handlers/sessionctx"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/models"
)

type sessionService interface {
	// Resolve session by id
	// Has to return apperrors.ErrSessionNotFound for unknown ids
	Get(ctx context.Context, id uuid.UUID) (models.Session, error)

	// Record the denied navigation target, creating a session if needed
	RememberReturnURL(ctx context.Context, id uuid.UUID, target string) (models.Session, error)
}

// RequireSession admits requests whose session holds an access token.
// Everything else is denied: browser navigations are remembered and sent
// to the login endpoint, API calls get a 401.
func RequireSession(sessions sessionService, l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionctx.IDFromRequest(r)

			if id != uuid.Nil {
				session, err := sessions.Get(r.Context(), id)
				switch {
				case err == nil && session.Tokens.Authenticated():
					ctx := sessionctx.New(r.Context(), session)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				case err != nil && !errors.Is(err, apperrors.ErrSessionNotFound):
					l.Error("session store read failed, denying request", "error", err)
				}
			}

			if !browserNavigation(r) {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := sessions.RememberReturnURL(r.Context(), id, r.URL.RequestURI())
			if err != nil {
				l.Error("cant remember denied target", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			sessionctx.SetCookie(w, session.ID)
			http.Redirect(w, r, "/auth/login", http.StatusFound)
		})
	}
}

// browserNavigation tells a top-level page load apart from an API call
func browserNavigation(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}
