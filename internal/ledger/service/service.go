// Package service layers escalation computation, logging, metrics, and the
// violation event stream over a ledger store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"governor/internal/audit"
	"governor/internal/ledger"
	"governor/internal/ledger/metrics"
	"governor/internal/rules"
	"governor/pkg/platform/sentinel"
	"governor/pkg/requestcontext"
)

// Standing pairs a ledger record with its derived escalation level.
type Standing struct {
	ledger.Record
	EscalationLevel ledger.EscalationLevel `json:"escalation_level"`
}

// Service is the write and read surface of the violation ledger.
type Service struct {
	store      ledger.Store
	thresholds ledger.Thresholds
	logger     *slog.Logger
	metrics    *metrics.Metrics
	events     audit.Sink
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

// WithEventSink streams recorded violations to an audit sink.
func WithEventSink(sink audit.Sink) Option {
	return func(s *Service) { s.events = sink }
}

// New constructs a ledger service.
func New(store ledger.Store, thresholds ledger.Thresholds, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	svc := &Service{
		store:      store,
		thresholds: thresholds,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RecordMatch durably increments the tally for a matched rule and returns
// the post-increment standing. The increment is already persisted when this
// returns; a caller abandoning the request cannot unrecord it.
func (s *Service) RecordMatch(ctx context.Context, match rules.MatchResult) (Standing, error) {
	rec, err := s.store.Record(ctx, match.RuleID, requestcontext.Now(ctx))
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObserveStoreError()
		}
		return Standing{}, fmt.Errorf("record match %s: %w", match.RuleID, err)
	}

	standing := s.standing(rec)
	if s.metrics != nil {
		s.metrics.ObserveRecord(rec.RuleID, string(standing.EscalationLevel))
	}
	s.logger.InfoContext(ctx, "violation recorded",
		"rule_id", rec.RuleID,
		"incident_count", rec.IncidentCount,
		"escalation_level", standing.EscalationLevel,
		"request_id", requestcontext.RequestID(ctx),
	)

	if s.events != nil {
		s.events.Enqueue(audit.Event{
			ID:            uuid.NewString(),
			RuleID:        rec.RuleID,
			Severity:      string(match.Severity),
			Action:        string(match.Action),
			SessionID:     requestcontext.SessionID(ctx),
			RequestID:     requestcontext.RequestID(ctx),
			IncidentCount: rec.IncidentCount,
			Escalation:    string(standing.EscalationLevel),
			Timestamp:     rec.LastOccurrence,
		})
	}
	return standing, nil
}

// Get returns the current standing for a rule ID, or sentinel.ErrNotFound
// for a never-recorded rule.
func (s *Service) Get(ctx context.Context, ruleID string) (Standing, error) {
	rec, err := s.store.Get(ctx, ruleID)
	if err != nil {
		return Standing{}, err
	}
	return s.standing(rec), nil
}

// Lookup returns the standing for a rule, treating a never-recorded rule as
// a zero-count standing rather than an error. Read-side callers that only
// need "how bad is this rule right now" use this instead of Get.
func (s *Service) Lookup(ctx context.Context, ruleID string) (Standing, error) {
	rec, err := s.store.Get(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.standing(ledger.Record{RuleID: ruleID}), nil
		}
		return Standing{}, err
	}
	return s.standing(rec), nil
}

// Escalation returns the escalation level for a rule. A never-recorded rule
// is at the level of count zero, not an error.
func (s *Service) Escalation(ctx context.Context, ruleID string) (ledger.EscalationLevel, error) {
	rec, err := s.store.Get(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.thresholds.Level(0), nil
		}
		return "", err
	}
	return s.thresholds.Level(rec.IncidentCount), nil
}

// Export returns a read-only snapshot of every record for audit tooling.
func (s *Service) Export(ctx context.Context) ([]Standing, error) {
	records, err := s.store.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("export ledger: %w", err)
	}
	standings := make([]Standing, 0, len(records))
	for _, rec := range records {
		standings = append(standings, s.standing(rec))
	}
	return standings, nil
}

func (s *Service) standing(rec ledger.Record) Standing {
	return Standing{
		Record:          rec,
		EscalationLevel: s.thresholds.Level(rec.IncidentCount),
	}
}
