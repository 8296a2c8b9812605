// Package retention owns the time-ordered event log of context entries and
// the policies that bound how long, and under what salience, entries stay
// stored.
package retention

import (
	"context"
	"time"
)

// Entry is one recorded context event. Immutable after creation except for
// salience recalculation through the explicit rescore operation.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Salience  float64   `json:"salience_score"`
	SessionID string    `json:"session_id,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Policy    string    `json:"retention_policy"`
}

// Policy is a named retention configuration, loaded once and immutable
// during a run. RetentionDays <= 0 means the policy never expires entries by
// age; MaxItems <= 0 means no cap.
type Policy struct {
	Name          string  `yaml:"name"`
	RetentionDays int     `yaml:"retention_days"`
	MinSalience   float64 `yaml:"min_salience_threshold"`
	MaxItems      int     `yaml:"max_items"`
}

// NeverExpires reports whether the policy exempts entries from age-based
// eviction.
func (p Policy) NeverExpires() bool {
	return p.RetentionDays <= 0
}

// SweepEligible reports whether an entry is removable by the age+salience
// sweep: it must be BOTH older than the retention window AND below the
// salience threshold. Never-expire policies are exempt from this sweep but
// still subject to the MaxItems cap.
func (p Policy) SweepEligible(e Entry, now time.Time) bool {
	if p.NeverExpires() {
		return false
	}
	cutoff := now.AddDate(0, 0, -p.RetentionDays)
	return e.Timestamp.Before(cutoff) && e.Salience < p.MinSalience
}

// Filter narrows a retention query. Embedding, when set, requests
// similarity ranking; entries without embeddings are still returned, ranked
// after the scored ones, so missing embeddings degrade rather than error.
type Filter struct {
	SessionID string
	Policy    string
	Since     time.Time
	Embedding []float32
}

// Store persists context entries. Evict must be idempotent and safe to run
// concurrently with Append and Query.
type Store interface {
	// Append stores a new entry and returns its ID. O(1) amortized; the
	// entry lands in a coarse time bucket so old-range scans and
	// eviction stay off the hot partition.
	Append(ctx context.Context, entry Entry) (string, error)

	// Query returns up to k entries matching the filter, most relevant
	// (or most recent) first.
	Query(ctx context.Context, filter Filter, k int) ([]Entry, error)

	// Rescore updates the salience of one entry.
	Rescore(ctx context.Context, id string, salience float64) error

	// Evict removes entries no longer satisfying their policy as of now:
	// the age+salience sweep plus MaxItems cap enforcement, lowest
	// salience and oldest first. Returns the number removed.
	Evict(ctx context.Context, now time.Time) (int, error)
}
