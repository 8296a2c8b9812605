// Package audit streams recorded violations to external consumers. The
// stream is strictly supplementary: the ledger is the source of truth, and a
// broker outage never blocks or fails a Record call.
package audit

import (
	"context"
	"time"
)

// Event is emitted for every recorded violation. Keep it transport-agnostic
// so sinks can fan out.
type Event struct {
	ID            string    `json:"id"`
	RuleID        string    `json:"rule_id"`
	Severity      string    `json:"severity"`
	Action        string    `json:"trigger_action"`
	SessionID     string    `json:"session_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	IncidentCount int64     `json:"incident_count"`
	Escalation    string    `json:"escalation_level"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher delivers events to an external system.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Sink accepts events from domain logic without blocking it. A nil *Worker
// is a valid no-op sink, so callers never nil-check.
type Sink interface {
	Enqueue(event Event) bool
}
