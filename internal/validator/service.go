package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	ledgersvc "governor/internal/ledger/service"
	"governor/internal/retention"
	"governor/internal/rules"
	"governor/internal/validator/metrics"
	dErrors "governor/pkg/domain-errors"
	"governor/pkg/platform/circuit"
	"governor/pkg/requestcontext"
)

const tracerName = "governor"

// Ledger is the slice of the violation ledger the validator uses.
type Ledger interface {
	RecordMatch(ctx context.Context, match rules.MatchResult) (ledgersvc.Standing, error)
	Lookup(ctx context.Context, ruleID string) (ledgersvc.Standing, error)
}

// Recaller is the slice of the retention store the validator uses for
// contextual recall at the higher tiers.
type Recaller interface {
	Query(ctx context.Context, filter retention.Filter, k int) ([]retention.Entry, error)
}

// Service checks submitted events. Ledger and retention calls run behind
// circuit breakers; when either store is down the service returns pattern
// matcher results with Partial set instead of failing the caller.
type Service struct {
	matcher  *rules.Matcher
	ledger   Ledger
	recaller Recaller

	cache       *resultCache
	ttls        TTLs
	recallLimit int

	ledgerBreaker    *circuit.Breaker
	retentionBreaker *circuit.Breaker

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
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

// WithRecallLimit caps how many retention entries a check pulls in.
func WithRecallLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recallLimit = n
		}
	}
}

// New constructs a validator service. recaller may be nil when the
// deployment runs without a retention store; recall tiers then mark results
// partial.
func New(matcher *rules.Matcher, ledger Ledger, recaller Recaller, ttls TTLs, opts ...Option) (*Service, error) {
	if matcher == nil {
		return nil, fmt.Errorf("matcher is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}

	svc := &Service{
		matcher:          matcher,
		ledger:           ledger,
		recaller:         recaller,
		cache:            newResultCache(),
		ttls:             ttls,
		recallLimit:      5,
		ledgerBreaker:    circuit.New("ledger"),
		retentionBreaker: circuit.New("retention"),
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit checks one event at the declared tier. Critical-tier checks always
// recompute; other tiers may serve a cached result within its TTL. The
// returned error is only for invalid input; store outages degrade the result
// instead.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Event == "" {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "event_text is required")
	}
	if !req.Tier.IsValid() {
		return Result{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid tier %q", req.Tier)
	}

	ctx, span := s.tracer.Start(ctx, "validator.Submit",
		trace.WithAttributes(attribute.String("tier", string(req.Tier))))
	defer span.End()

	if s.metrics != nil {
		s.metrics.ChecksTotal.WithLabelValues(string(req.Tier)).Inc()
	}
	if req.SessionID != "" && requestcontext.SessionID(ctx) == "" {
		ctx = requestcontext.WithSessionID(ctx, req.SessionID)
	}

	key := fingerprint(req.Event, req.Tier)
	now := requestcontext.Now(ctx)

	// Critical trades latency for a zero-staleness guarantee: no lookup,
	// ever.
	if req.Tier != TierCritical {
		if cached, ok := s.cache.get(key, now); ok {
			cached.Cached = true
			if s.metrics != nil {
				s.metrics.CacheHits.Inc()
			}
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	start := time.Now()
	result := s.execute(ctx, req)

	if s.metrics != nil {
		s.metrics.CheckDuration.Observe(time.Since(start).Seconds())
		for _, m := range result.Matches {
			s.metrics.MatchesTotal.WithLabelValues(string(m.Severity)).Inc()
		}
		if result.Partial {
			s.metrics.PartialResponses.Inc()
		}
	}
	span.SetAttributes(
		attribute.Int("matches", len(result.Matches)),
		attribute.Bool("partial", result.Partial),
	)

	// A partial result reflects an outage, not the event; caching it would
	// pin the degradation past the store's recovery.
	if !result.Partial {
		s.cache.put(key, result, now, s.ttls.For(req.Tier))
	}
	return result, nil
}

func (s *Service) execute(ctx context.Context, req Request) Result {
	found := s.matcher.Match(req.Event)

	result := Result{
		Matches: make([]Match, len(found)),
		Status:  StatusComplete,
	}

	var (
		ledgerOK    = true
		retentionOK = true
	)

	// Ledger enrichment and recall touch disjoint stores; fan them out and
	// join before aggregation. Each branch owns its slice of the result.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ledgerOK = s.enrichMatches(gctx, found, result.Matches)
		return nil
	})
	if req.Tier.RequiresRecall() {
		g.Go(func() error {
			result.Recall, retentionOK = s.recall(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case !ledgerOK:
		result.Status = StatusDegraded
		result.Partial = true
	case !retentionOK:
		result.Status = StatusPartial
		result.Partial = true
	}
	return result
}

// enrichMatches records block/escalate matches and looks up standings for
// the rest, filling out in place. Reports false when any ledger call failed.
func (s *Service) enrichMatches(ctx context.Context, found []rules.MatchResult, out []Match) bool {
	ok := true
	for i, m := range found {
		out[i] = Match{MatchResult: m}

		if s.ledgerBreaker.IsOpen() {
			ok = false
			continue
		}

		var standing ledgersvc.Standing
		var err error
		if m.Action.Recorded() {
			// The increment must land even when the caller abandons the
			// request mid-flight; a cancelled check cannot drop a true
			// violation.
			standing, err = s.ledger.RecordMatch(context.WithoutCancel(ctx), m)
		} else {
			standing, err = s.ledger.Lookup(ctx, m.RuleID)
		}
		if err != nil {
			ok = false
			if _, change := s.ledgerBreaker.RecordFailure(); change.Opened {
				s.logger.WarnContext(ctx, "ledger circuit opened", "breaker", s.ledgerBreaker.Name())
			}
			s.logger.WarnContext(ctx, "ledger unavailable during check",
				"rule_id", m.RuleID,
				"error", err,
			)
			continue
		}
		if _, change := s.ledgerBreaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "ledger circuit closed", "breaker", s.ledgerBreaker.Name())
		}

		out[i].IncidentCount = standing.IncidentCount
		out[i].EscalationLevel = standing.EscalationLevel
	}
	return ok
}

func (s *Service) recall(ctx context.Context, req Request) ([]retention.Entry, bool) {
	if s.recaller == nil || s.retentionBreaker.IsOpen() {
		return nil, false
	}

	entries, err := s.recaller.Query(ctx, retention.Filter{SessionID: req.SessionID}, s.recallLimit)
	if err != nil {
		if _, change := s.retentionBreaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "retention circuit opened", "breaker", s.retentionBreaker.Name())
		}
		s.logger.WarnContext(ctx, "retention unavailable during check",
			"session_id", req.SessionID,
			"error", err,
		)
		return nil, false
	}
	if _, change := s.retentionBreaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "retention circuit closed", "breaker", s.retentionBreaker.Name())
	}
	return entries, true
}
