package models

import (
	"github.com/shopspring/decimal"
)

// KPIReport mirrors GET /agent/tools/kpis
type KPIReport struct {
	Sales30d  decimal.Decimal `json:"sales_30d"`
	Margin30d decimal.Decimal `json:"margin_30d"`
	ARTotal   decimal.Decimal `json:"ar_total"`
	AROver60d decimal.Decimal `json:"ar_over_60d"`
}

type ForecastPoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// CashflowForecast mirrors GET /agent/tools/cashflow
type CashflowForecast struct {
	HorizonDays int             `json:"horizon_days"`
	Forecast    []ForecastPoint `json:"forecast"`
}

// Anomaly is one flagged day from GET /agent/tools/anomalies.
// Deviation is "high" or "low" relative to the mean.
type Anomaly struct {
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	ZScore    decimal.Decimal `json:"z_score"`
	Deviation string          `json:"deviation"`
}

// AgentAction is a recorded backend action, e.g. a collection reminder
type AgentAction struct {
	ID          string         `json:"action_id"`
	Action      string         `json:"action"`
	Payload     map[string]any `json:"payload,omitempty"`
	PerformedBy string         `json:"performed_by,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
}

// ActionList mirrors GET /agent/actions
type ActionList struct {
	Actions []AgentAction `json:"actions"`
	Total   int           `json:"total"`
}

// ChatReply mirrors POST /agent/chat
type ChatReply struct {
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}
