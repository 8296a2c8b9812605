// Package validator orchestrates a submitted event through pattern matching,
// ledger recording, and contextual recall, scaled to the caller's declared
// scrutiny tier. Results are cached per tier with a hard bypass for the
// highest tier.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"governor/internal/ledger"
	"governor/internal/retention"
	"governor/internal/rules"
)

// Tier is the caller-declared scrutiny level. It controls cache TTL, cache
// bypass, and whether contextual recall runs.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// IsValid reports whether the tier is a known value.
func (t Tier) IsValid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh, TierCritical:
		return true
	}
	return false
}

// RequiresRecall reports whether checks at this tier include a retention
// store query.
func (t Tier) RequiresRecall() bool {
	return t == TierHigh || t == TierCritical
}

// ParseTier converts a string to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid tier: %s", s)
	}
	return t, nil
}

// Status classifies how complete a check result is.
type Status string

const (
	// StatusComplete means every store the tier required answered.
	StatusComplete Status = "complete"
	// StatusPartial means the retention store was unavailable; matches and
	// ledger standings are present, recall is missing.
	StatusPartial Status = "partial"
	// StatusDegraded means the ledger was unavailable; only pattern matcher
	// results are present.
	StatusDegraded Status = "degraded"
)

// Request is one event submitted for checking.
type Request struct {
	Event     string `json:"event_text"`
	SessionID string `json:"session_id,omitempty"`
	Tier      Tier   `json:"tier"`
}

// Match is one rule match enriched with the rule's current ledger standing.
// IncidentCount and EscalationLevel are zero-valued when the ledger was
// unavailable for this call.
type Match struct {
	rules.MatchResult
	IncidentCount   int64                  `json:"incident_count"`
	EscalationLevel ledger.EscalationLevel `json:"escalation_level,omitempty"`
}

// Result is the aggregated outcome of one check.
type Result struct {
	Matches []Match           `json:"matches"`
	Recall  []retention.Entry `json:"recall,omitempty"`
	Partial bool              `json:"partial"`
	Cached  bool              `json:"cached"`
	Status  Status            `json:"status"`
}

// fingerprint derives the cache key from the event content and tier, so a
// stale entry can never be misread as fresh for a different event or a
// different scrutiny level.
func fingerprint(event string, tier Tier) string {
	sum := sha256.Sum256([]byte(event))
	return hex.EncodeToString(sum[:]) + ":" + string(tier)
}
