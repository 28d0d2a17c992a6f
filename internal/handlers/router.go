package handlers

import (
	"net/http"

	"github.com/avoronov/agentgate/internal/handlers/middleware"
	"github.com/avoronov/agentgate/internal/handlers/render"
	"github.com/avoronov/agentgate/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	sessions sessionService,
	hosted hostedUI,
	agents agentService,
	logger logger.Logger,
) http.Handler {
	guard := middleware.RequireSession(sessions, logger)

	authHandler := NewAuth(sessions, hosted, logger)
	agentHandler := NewAgent(agents, logger)

	root := http.NewServeMux()
	root.Handle("/auth/", http.StripPrefix("/auth", authHandler.Handler()))
	root.Handle("/api/agent/", http.StripPrefix("/api/agent", guard(agentHandler.Handler())))
	root.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, map[string]string{"status": "ok"})
	}))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}
