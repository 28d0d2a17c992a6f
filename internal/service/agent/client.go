package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/avoronov/agentgate/internal/apperrors"
	"github.com/avoronov/agentgate/internal/logger"
	"github.com/avoronov/agentgate/internal/models"
)

const (
	DefaultKPIPeriod       = "last_30d"
	DefaultForecastHorizon = 30

	requestTimeout = 5 * time.Second
)

// Error codes the client distinguishes
const (
	CodeUnauthorized = "unauthorized"
	CodeBadRequest   = "bad_request"
	CodeUnknown      = "unknown"
)

type BackendError struct {
	Code   string
	Status int
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("code: %s, status: %d, error: %v", e.Code, e.Status, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ReminderRequest is the body of POST /agent/actions/collection-reminder.
// RemindDate defaults to today on the backend when left empty.
type ReminderRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
	InvoiceID  string `json:"invoice_id,omitempty"`
	RemindDate string `json:"remind_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// Client talks to the agent-tools backend.
// Authorization is the transport's job: pass a BearerTransport so every
// call carries the session's token and 401s trip the logout hook.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	logger  logger.Logger
}

func NewClient(baseURL string, transport http.RoundTripper, l logger.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("cant parse backend base url: %w", err)
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		baseURL: parsed,
		client:  &http.Client{Transport: transport},
		logger:  l,
	}, nil
}

// KPIs fetches the dashboard indicators for a period like "last_30d"
func (c *Client) KPIs(ctx context.Context, period string) (models.KPIReport, error) {
	if period == "" {
		period = DefaultKPIPeriod
	}

	var report models.KPIReport
	err := c.get(ctx, "/agent/tools/kpis", url.Values{"period": {period}}, &report)
	return report, err
}

// CashflowForecast fetches the moving-average projection for the horizon
func (c *Client) CashflowForecast(ctx context.Context, horizonDays int) (models.CashflowForecast, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultForecastHorizon
	}

	var forecast models.CashflowForecast
	err := c.get(ctx, "/agent/tools/cashflow", url.Values{"horizon": {strconv.Itoa(horizonDays)}}, &forecast)
	return forecast, err
}

// Anomalies fetches z-score outliers. Zero threshold means backend default.
func (c *Client) Anomalies(ctx context.Context, period string, threshold float64) ([]models.Anomaly, error) {
	query := url.Values{}
	if period != "" {
		query.Set("period", period)
	}
	if threshold > 0 {
		query.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
	}

	var anomalies []models.Anomaly
	err := c.get(ctx, "/agent/tools/anomalies", query, &anomalies)
	return anomalies, err
}

// CreateCollectionReminder records a reminder action for an overdue customer
func (c *Client) CreateCollectionReminder(ctx context.Context, req ReminderRequest) (models.AgentAction, error) {
	var action models.AgentAction
	err := c.post(ctx, "/agent/actions/collection-reminder", req, &action)
	return action, err
}

// ListActions pages through the recorded action log
func (c *Client) ListActions(ctx context.Context, limit int, offset int) (models.ActionList, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var list models.ActionList
	err := c.get(ctx, "/agent/actions", query, &list)
	return list, err
}

// Chat forwards a prompt to the backend agent.
// An empty sessionID starts a fresh conversation.
func (c *Client) Chat(ctx context.Context, prompt string, sessionID string) (models.ChatReply, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	body := struct {
		Prompt    string `json:"prompt"`
		SessionID string `json:"session_id,omitempty"`
	}{Prompt: prompt, SessionID: sessionID}

	var reply models.ChatReply
	err := c.post(ctx, "/agent/chat", body, &reply)
	if err == nil && reply.SessionID == "" {
		reply.SessionID = sessionID
	}
	return reply, err
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) do(ctx context.Context, method string, path string, query url.Values, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	target := *c.baseURL
	joined, err := url.JoinPath(c.baseURL.Path, path)
	if err != nil {
		return &BackendError{Code: CodeUnknown, Err: fmt.Errorf("cant build request url: %w", err)}
	}
	target.Path = joined
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return &BackendError{Code: CodeUnknown, Err: fmt.Errorf("cant encode request body: %w", err)}
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return &BackendError{Code: CodeUnknown, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &BackendError{Code: CodeUnknown, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode backend response", "path", path, "error", err)
			return &BackendError{Code: CodeUnknown, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		// The transport already fired the logout hook, report upstream
		return &BackendError{Code: CodeUnauthorized, Status: resp.StatusCode, Err: apperrors.ErrUnauthorized}

	case resp.StatusCode == http.StatusBadRequest:
		return &BackendError{Code: CodeBadRequest, Status: resp.StatusCode, Err: apperrors.ErrActionInvalid}

	default:
		c.logger.Warn("Unexpected backend status", "path", path, "status_code", resp.StatusCode)
		return &BackendError{Code: CodeUnknown, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, path)}
	}
}
