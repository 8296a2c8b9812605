// Package service validates and enriches retention operations before they
// reach a store: policy name checks, ID and timestamp assignment, salience
// clamping, logging, and metrics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"governor/internal/retention"
	"governor/internal/retention/metrics"
	dErrors "governor/pkg/domain-errors"
	"governor/pkg/requestcontext"
)

// Service is the operational surface of the retention store.
type Service struct {
	store    retention.Store
	policies *retention.Policies
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a retention service.
func New(store retention.Store, policies *retention.Policies, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("retention store is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("retention policies are required")
	}

	svc := &Service{
		store:    store,
		policies: policies,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Append validates and stores a context entry, returning its ID. Unknown
// policy names are an input error; the engine never invents a policy for an
// entry.
func (s *Service) Append(ctx context.Context, entry retention.Entry) (string, error) {
	if entry.Content == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "entry content is required")
	}
	if _, ok := s.policies.Get(entry.Policy); !ok {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown retention policy %q", entry.Policy)
	}
	if entry.Salience < 0 {
		entry.Salience = 0
	}
	if entry.Salience > 1 {
		entry.Salience = 1
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}

	id, err := s.store.Append(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("append entry: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EntriesAppended.Inc()
	}
	s.logger.DebugContext(ctx, "context entry appended",
		"entry_id", id,
		"policy", entry.Policy,
		"session_id", entry.SessionID,
	)
	return id, nil
}

// Query returns up to k matching entries.
func (s *Service) Query(ctx context.Context, filter retention.Filter, k int) ([]retention.Entry, error) {
	if k <= 0 {
		k = 10
	}
	entries, err := s.store.Query(ctx, filter, k)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Queries.Inc()
	}
	return entries, nil
}

// Rescore recalculates the salience of one entry.
func (s *Service) Rescore(ctx context.Context, id string, salience float64) error {
	if salience < 0 || salience > 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "salience %v outside [0,1]", salience)
	}
	return s.store.Rescore(ctx, id, salience)
}

// Evict runs one policy sweep and reports how many entries were removed.
func (s *Service) Evict(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := s.store.Evict(ctx, requestcontext.Now(ctx))
	if err != nil {
		return removed, fmt.Errorf("evict entries: %w", err)
	}
	if s.metrics != nil {
		s.metrics.EntriesEvicted.Add(float64(removed))
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "retention sweep removed entries", "count", removed)
	}
	return removed, nil
}
