// Package memory provides the in-memory ledger store used by tests and
// single-process development runs. It honors the atomicity contract but not
// the durability one; production deployments use the postgres or redis
// stores.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"governor/internal/ledger"
	"governor/pkg/platform/sentinel"
)

// Store implements ledger.Store over a mutex-guarded map. A single lock
// covers all keys; increments for the same rule ID serialize on it, which
// gives the linearizable no-lost-updates guarantee.
type Store struct {
	mu      sync.RWMutex
	records map[string]*ledger.Record
}

// New creates an empty in-memory ledger store.
func New() *Store {
	return &Store{records: make(map[string]*ledger.Record)}
}

// Record atomically increments or creates the tally for ruleID.
func (s *Store) Record(_ context.Context, ruleID string, at time.Time) (ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ruleID]
	if !ok {
		rec = &ledger.Record{
			RuleID:          ruleID,
			FirstOccurrence: at,
		}
		s.records[ruleID] = rec
	}
	rec.IncidentCount++
	rec.LastOccurrence = at
	return *rec, nil
}

// Get returns a snapshot of the record for ruleID.
func (s *Store) Get(_ context.Context, ruleID string) (ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[ruleID]
	if !ok {
		return ledger.Record{}, sentinel.ErrNotFound
	}
	return *rec, nil
}

// Export returns all records ordered by rule ID.
func (s *Store) Export(_ context.Context) ([]ledger.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out, nil
}
