// Package ledger owns the durable, append-only record of rule violations.
// Records are created on first match and mutated only by atomic increments;
// they are never deleted. Other components read snapshots only.
package ledger

import (
	"context"
	"time"

	dErrors "governor/pkg/domain-errors"
)

// Record is the per-rule violation tally. IncidentCount is monotonically
// increasing; a Record is a permanent audit trail entry.
type Record struct {
	RuleID          string    `json:"rule_id"`
	IncidentCount   int64     `json:"incident_count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

// EscalationLevel buckets a cumulative incident count.
type EscalationLevel string

const (
	LevelLow      EscalationLevel = "low"
	LevelMedium   EscalationLevel = "medium"
	LevelCritical EscalationLevel = "critical"
)

// Thresholds maps incident counts to escalation levels. Escalation is a pure
// function of the count, so nothing beyond the count itself is ever stored;
// there is no second source of truth to drift.
type Thresholds struct {
	MediumAt   int64
	CriticalAt int64
}

// DefaultThresholds matches the documented 0-4 low, 5-10 medium, >10
// critical buckets.
func DefaultThresholds() Thresholds {
	return Thresholds{MediumAt: 5, CriticalAt: 11}
}

// Validate rejects threshold tables that would make escalation
// non-monotonic.
func (t Thresholds) Validate() error {
	if t.MediumAt <= 0 || t.CriticalAt <= t.MediumAt {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"escalation thresholds must satisfy 0 < medium (%d) < critical (%d)",
			t.MediumAt, t.CriticalAt)
	}
	return nil
}

// Level computes the escalation level for a count. Non-decreasing in count
// for a fixed table.
func (t Thresholds) Level(count int64) EscalationLevel {
	switch {
	case count >= t.CriticalAt:
		return LevelCritical
	case count >= t.MediumAt:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Store persists violation records. Implementations must make Record safe
// under concurrent callers for the same rule ID: increments are atomic
// read-modify-writes, linearizable per rule ID, and durable before Record
// returns. Get returns sentinel.ErrNotFound for never-recorded rule IDs.
type Store interface {
	// Record atomically increments (or creates) the tally for ruleID,
	// stamping the occurrence at the given time, and returns the
	// post-increment snapshot.
	Record(ctx context.Context, ruleID string, at time.Time) (Record, error)

	// Get returns a snapshot of the record for ruleID.
	Get(ctx context.Context, ruleID string) (Record, error)

	// Export returns a read-only snapshot of all records for audit
	// tooling, ordered by rule ID.
	Export(ctx context.Context) ([]Record, error)
}
