package domain

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	EventHTTPRequest = "http_request"
	EventAuth        = "auth"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one auth telemetry event. It is serialized as JSON onto the event stream.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"event_type"`
	Source    string          `json:"source"`
	Action    string          `json:"action,omitempty"`
	Outcome   string          `json:"outcome"`
	Username  string          `json:"username,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	ClientIP  string          `json:"client_ip,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
