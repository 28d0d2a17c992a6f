package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/handlers/render"
	"github.com/avoronov/agentgate/internal/handlers/sessionctx"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/models"
	"github.com/avoronov/agentgate/internal/service/agent"
)

type agentService interface {
	KPIs(ctx context.Context, period string) (models.KPIReport, error)
	CashflowForecast(ctx context.Context, horizonDays int) (models.CashflowForecast, error)
	Anomalies(ctx context.Context, period string, threshold float64) ([]models.Anomaly, error)
	CreateCollectionReminder(ctx context.Context, req agent.ReminderRequest) (models.AgentAction, error)
	ListActions(ctx context.Context, limit int, offset int) (models.ActionList, error)
	Chat(ctx context.Context, prompt string, sessionID string) (models.ChatReply, error)
}

type AgentHandler struct {
	agent  agentService
	logger logger.Logger
}

func NewAgent(agent agentService, l logger.Logger) *AgentHandler {
	return &AgentHandler{agent: agent, logger: l}
}

func (h *AgentHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /kpis", h.kpis)
	mux.HandleFunc("GET /cashflow", h.cashflow)
	mux.HandleFunc("GET /anomalies", h.anomalies)
	mux.HandleFunc("POST /actions/collection-reminder", h.createReminder)
	mux.HandleFunc("GET /actions", h.listActions)
	mux.HandleFunc("POST /chat", h.chat)

	return mux
}

func (h *AgentHandler) kpis(w http.ResponseWriter, r *http.Request) {
	report, err := h.agent.KPIs(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		h.backendError(w, err)
		return
	}
	render.JSON(w, report)
}

func (h *AgentHandler) cashflow(w http.ResponseWriter, r *http.Request) {
	horizon, _ := strconv.Atoi(r.URL.Query().Get("horizon"))

	forecast, err := h.agent.CashflowForecast(r.Context(), horizon)
	if err != nil {
		h.backendError(w, err)
		return
	}
	render.JSON(w, forecast)
}

func (h *AgentHandler) anomalies(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)

	anomalies, err := h.agent.Anomalies(r.Context(), r.URL.Query().Get("period"), threshold)
	if err != nil {
		h.backendError(w, err)
		return
	}
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	render.JSON(w, anomalies)
}

func (h *AgentHandler) createReminder(w http.ResponseWriter, r *http.Request) {
	data, err := render.BindAndValidate[agent.ReminderRequest](w, r)
	if err != nil {
		return
	}

	action, err := h.agent.CreateCollectionReminder(r.Context(), data)
	if err != nil {
		h.backendError(w, err)
		return
	}
	render.JSON(w, action)
}

func (h *AgentHandler) listActions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := h.agent.ListActions(r.Context(), limit, offset)
	if err != nil {
		h.backendError(w, err)
		return
	}
	render.JSON(w, list)
}

func (h *AgentHandler) chat(w http.ResponseWriter, r *http.Request) {
	type ChatRequest struct {
		Prompt    string `json:"prompt" validate:"required,max=4000"`
		// Opaque conversation id, the backend accepts any shape
		SessionID string `json:"session_id" validate:"omitempty,max=128"`
	}

	data, err := render.BindAndValidate[ChatRequest](w, r)
	if err != nil {
		return
	}

	reply, err := h.agent.Chat(r.Context(), data.Prompt, data.SessionID)
	if err != nil {
		h.backendError(w, err)
		return
	}
	render.JSON(w, reply)
}

// backendError maps client failures to gateway responses.
// A 401 already cleared the session through the transport hook, the
// frontend only needs to learn it must log in again.
func (h *AgentHandler) backendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		render.ServiceError(w, "session_expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrActionInvalid):
		render.ServiceError(w, "Invalid action request", http.StatusBadRequest)
	default:
		h.logger.Error("agent backend request failed", "error", err)
		render.ServiceError(w, "Agent backend unavailable", http.StatusBadGateway)
	}
}

// SessionTokens adapts the session manager to the bearer transport.
// The session travels in the request context, put there by the guard, so
// one shared transport serves every user.
func SessionTokens(sessions sessionService) agent.TokenSource {
	return tokenSourceFunc(func(ctx context.Context) (string, bool) {
		s, ok := sessionctx.FromContext(ctx)
		if !ok {
			return "", false
		}

		// Re-read the store: the context copy may predate a clear
		current, err := sessions.Get(ctx, s.ID)
		if err != nil || !current.Tokens.Authenticated() {
			return "", false
		}
		return current.Tokens.AccessToken, true
	})
}

// AuthFailure returns the transport hook that logs the session out after
// the backend rejected its token. Clearing is idempotent, concurrent 401
// responses may all fire it.
func AuthFailure(sessions sessionService, l logger.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		s, ok := sessionctx.FromContext(ctx)
		if !ok {
			return
		}

		if err := sessions.Clear(ctx, s.ID); err != nil {
			l.Error("cant clear session after backend 401", "error", err, "session_id", s.ID)
		}
	}
}

type tokenSourceFunc func(ctx context.Context) (string, bool)

func (f tokenSourceFunc) AccessToken(ctx context.Context) (string, bool) {
	return f(ctx)
}
