// Package memory provides the in-memory retention store. Entries are
// partitioned into monthly buckets so eviction sweeps and old-range queries
// walk cold partitions without touching the hot one entry by entry.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"governor/internal/retention"
	"governor/pkg/platform/sentinel"
)

// bucketKey is the coarse time partition an entry lands in.
func bucketKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Store implements retention.Store over mutex-guarded monthly buckets.
type Store struct {
	mu       sync.RWMutex
	policies *retention.Policies
	buckets  map[string][]*retention.Entry
	byID     map[string]*retention.Entry
}

// New creates an empty in-memory retention store over the given policies.
func New(policies *retention.Policies) *Store {
	return &Store{
		policies: policies,
		buckets:  make(map[string][]*retention.Entry),
		byID:     make(map[string]*retention.Entry),
	}
}

// Append stores a new entry and returns its ID.
func (s *Store) Append(_ context.Context, entry retention.Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(entry.Timestamp)
	e := entry
	s.buckets[key] = append(s.buckets[key], &e)
	s.byID[e.ID] = &e
	return e.ID, nil
}

// Query returns up to k entries matching the filter. With an embedding in
// the filter, entries carrying embeddings are ranked by cosine similarity
// and entries without one follow in recency order; without an embedding (or
// when nothing matched has one) results are recency-ordered.
func (s *Store) Query(_ context.Context, filter retention.Filter, k int) ([]retention.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*retention.Entry
	for _, bucket := range s.buckets {
		for _, e := range bucket {
			if matches(e, filter) {
				matched = append(matched, e)
			}
		}
	}

	if len(filter.Embedding) > 0 {
		rankBySimilarity(matched, filter.Embedding)
	} else {
		sort.Slice(matched, func(i, j int) bool {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		})
	}

	if k > 0 && len(matched) > k {
		matched = matched[:k]
	}
	out := make([]retention.Entry, 0, len(matched))
	for _, e := range matched {
		out = append(out, *e)
	}
	return out, nil
}

// Rescore updates the salience of one entry.
func (s *Store) Rescore(_ context.Context, id string, salience float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	e.Salience = salience
	return nil
}

// Evict removes entries that no longer satisfy their policy: first the
// age+salience sweep, then MaxItems cap enforcement removing lowest-salience
// oldest entries first. Idempotent; a second run right after removes
// nothing.
func (s *Store) Evict(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	// Age+salience sweep, bucket by bucket.
	for key, bucket := range s.buckets {
		kept := bucket[:0]
		for _, e := range bucket {
			policy, ok := s.policies.Get(e.Policy)
			if ok && policy.SweepEligible(*e, now) {
				delete(s.byID, e.ID)
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.buckets, key)
		} else {
			s.buckets[key] = kept
		}
	}

	// Cap enforcement per policy.
	for _, policy := range s.policies.All() {
		if policy.MaxItems <= 0 {
			continue
		}
		var tagged []*retention.Entry
		for _, bucket := range s.buckets {
			for _, e := range bucket {
				if e.Policy == policy.Name {
					tagged = append(tagged, e)
				}
			}
		}
		overflow := len(tagged) - policy.MaxItems
		if overflow <= 0 {
			continue
		}
		sort.Slice(tagged, func(i, j int) bool {
			if tagged[i].Salience != tagged[j].Salience {
				return tagged[i].Salience < tagged[j].Salience
			}
			return tagged[i].Timestamp.Before(tagged[j].Timestamp)
		})
		doomed := make(map[string]struct{}, overflow)
		for _, e := range tagged[:overflow] {
			doomed[e.ID] = struct{}{}
		}
		for key, bucket := range s.buckets {
			kept := bucket[:0]
			for _, e := range bucket {
				if _, gone := doomed[e.ID]; gone {
					delete(s.byID, e.ID)
					removed++
					continue
				}
				kept = append(kept, e)
			}
			if len(kept) == 0 {
				delete(s.buckets, key)
			} else {
				s.buckets[key] = kept
			}
		}
	}

	return removed, nil
}

func matches(e *retention.Entry, f retention.Filter) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.Policy != "" && e.Policy != f.Policy {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// rankBySimilarity orders entries with embeddings by cosine similarity to
// the query vector, descending; entries without embeddings follow in recency
// order.
func rankBySimilarity(entries []*retention.Entry, query []float32) {
	sort.SliceStable(entries, func(i, j int) bool {
		ei, ej := entries[i], entries[j]
		hi, hj := len(ei.Embedding) > 0, len(ej.Embedding) > 0
		switch {
		case hi && hj:
			return cosine(ei.Embedding, query) > cosine(ej.Embedding, query)
		case hi != hj:
			return hi
		default:
			return ei.Timestamp.After(ej.Timestamp)
		}
	})
}

// cosine computes cosine similarity; mismatched or zero vectors score 0 so
// they rank last rather than erroring.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
