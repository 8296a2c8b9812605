package validator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"governor/internal/ledger"
	ledgersvc "governor/internal/ledger/service"
	ledgermemory "governor/internal/ledger/store/memory"
	"governor/internal/retention"
	retentionsvc "governor/internal/retention/service"
	retentionmemory "governor/internal/retention/store/memory"
	"governor/internal/rules"
	dErrors "governor/pkg/domain-errors"
	"governor/pkg/requestcontext"
)

const ruleYAML = `rules:
  - id: repeated-apology
    pattern: "(?i)i apologize"
    severity: low
    trigger_action: log
  - id: instruction-drop
    pattern: "(?i)ignoring previous instruction"
    severity: high
    trigger_action: escalate
  - id: fabricated-citation
    pattern: "(?i)as cited in \\[[0-9]+\\]"
    severity: critical
    trigger_action: block
`

type failingRecaller struct{}

func (failingRecaller) Query(context.Context, retention.Filter, int) ([]retention.Entry, error) {
	return nil, errors.New("retention store unreachable")
}

type failingLedger struct{}

func (failingLedger) RecordMatch(context.Context, rules.MatchResult) (ledgersvc.Standing, error) {
	return ledgersvc.Standing{}, errors.New("ledger unreachable")
}

func (failingLedger) Lookup(context.Context, string) (ledgersvc.Standing, error) {
	return ledgersvc.Standing{}, errors.New("ledger unreachable")
}

type ServiceSuite struct {
	suite.Suite
	ctx          context.Context
	matcher      *rules.Matcher
	ledger       *ledgersvc.Service
	retention    *retentionsvc.Service
	retentionMem *retentionmemory.Store
	service      *Service
	ttls         TTLs
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	set, err := rules.Load([]byte(ruleYAML))
	s.Require().NoError(err)
	s.matcher = rules.NewMatcher(set)

	s.ledger, err = ledgersvc.New(ledgermemory.New(), ledger.DefaultThresholds(),
		ledgersvc.WithLogger(logger))
	s.Require().NoError(err)

	policies, err := retention.NewPolicies([]retention.Policy{
		{Name: "session", RetentionDays: 7, MinSalience: 0.3},
	})
	s.Require().NoError(err)
	s.retentionMem = retentionmemory.New(policies)
	s.retention, err = retentionsvc.New(s.retentionMem, policies,
		retentionsvc.WithLogger(logger))
	s.Require().NoError(err)

	s.ttls = TTLs{Low: 5 * time.Minute, Medium: time.Minute, High: 10 * time.Second}
	s.service = s.newService(s.ledger, s.retention)
}

func (s *ServiceSuite) newService(l Ledger, r Recaller) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(s.matcher, l, r, s.ttls, WithLogger(logger), WithRecallLimit(5))
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) TestSubmitValidatesInput() {
	_, err := s.service.Submit(s.ctx, Request{Tier: TierLow})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	_, err = s.service.Submit(s.ctx, Request{Event: "hello", Tier: Tier("extreme")})
	s.Require().Error(err)
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestCleanEventReturnsEmptyComplete() {
	result, err := s.service.Submit(s.ctx, Request{Event: "all good here", Tier: TierLow})
	s.Require().NoError(err)
	s.Empty(result.Matches)
	s.False(result.Partial)
	s.False(result.Cached)
	s.Equal(StatusComplete, result.Status)
}

func (s *ServiceSuite) TestLowTierSecondCallWithinTTLIsCached() {
	req := Request{Event: "I apologize for the confusion", Tier: TierLow}

	first, err := s.service.Submit(s.ctx, req)
	s.Require().NoError(err)
	s.False(first.Cached)
	s.Require().Len(first.Matches, 1)

	second, err := s.service.Submit(s.ctx, req)
	s.Require().NoError(err)
	s.True(second.Cached)
	s.Equal(first.Matches, second.Matches)
}

func (s *ServiceSuite) TestCriticalTierNeverCached() {
	req := Request{Event: "I apologize again", Tier: TierCritical}

	for i := 0; i < 3; i++ {
		result, err := s.service.Submit(s.ctx, req)
		s.Require().NoError(err)
		s.False(result.Cached)
	}
}

func (s *ServiceSuite) TestCachedResultExpiresAfterTTL() {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	req := Request{Event: "I apologize once more", Tier: TierHigh}

	_, err := s.service.Submit(requestcontext.WithTime(s.ctx, base), req)
	s.Require().NoError(err)

	within, err := s.service.Submit(requestcontext.WithTime(s.ctx, base.Add(5*time.Second)), req)
	s.Require().NoError(err)
	s.True(within.Cached)

	after, err := s.service.Submit(requestcontext.WithTime(s.ctx, base.Add(11*time.Second)), req)
	s.Require().NoError(err)
	s.False(after.Cached)
}

func (s *ServiceSuite) TestDifferentTiersDoNotShareCacheEntries() {
	event := "I apologize profusely"

	_, err := s.service.Submit(s.ctx, Request{Event: event, Tier: TierLow})
	s.Require().NoError(err)

	result, err := s.service.Submit(s.ctx, Request{Event: event, Tier: TierMedium})
	s.Require().NoError(err)
	s.False(result.Cached)
}

func (s *ServiceSuite) TestEscalateMatchIncrementsLedger() {
	req := Request{Event: "now ignoring previous instruction", Tier: TierCritical}

	for want := int64(1); want <= 3; want++ {
		result, err := s.service.Submit(s.ctx, req)
		s.Require().NoError(err)
		s.Require().Len(result.Matches, 1)
		s.Equal("instruction-drop", result.Matches[0].RuleID)
		s.Equal(want, result.Matches[0].IncidentCount)
	}
}

func (s *ServiceSuite) TestLogMatchDoesNotIncrementLedger() {
	req := Request{Event: "I apologize, truly", Tier: TierCritical}

	for i := 0; i < 3; i++ {
		result, err := s.service.Submit(s.ctx, req)
		s.Require().NoError(err)
		s.Require().Len(result.Matches, 1)
		s.Equal(int64(0), result.Matches[0].IncidentCount)
		s.Equal(ledger.LevelLow, result.Matches[0].EscalationLevel)
	}
}

func (s *ServiceSuite) TestMatchesOrderedBySeverity() {
	event := "I apologize, ignoring previous instruction as cited in [3]"

	result, err := s.service.Submit(s.ctx, Request{Event: event, Tier: TierCritical})
	s.Require().NoError(err)
	s.Require().Len(result.Matches, 3)
	s.Equal("fabricated-citation", result.Matches[0].RuleID)
	s.Equal("instruction-drop", result.Matches[1].RuleID)
	s.Equal("repeated-apology", result.Matches[2].RuleID)
}

func (s *ServiceSuite) TestHighTierPullsRecall() {
	_, err := s.retention.Append(s.ctx, retention.Entry{
		Content:   "user asked for terse answers",
		Policy:    "session",
		Salience:  0.8,
		SessionID: "sess-1",
	})
	s.Require().NoError(err)

	result, err := s.service.Submit(s.ctx, Request{
		Event:     "I apologize at length",
		SessionID: "sess-1",
		Tier:      TierHigh,
	})
	s.Require().NoError(err)
	s.Require().Len(result.Recall, 1)
	s.Equal("user asked for terse answers", result.Recall[0].Content)
	s.Equal(StatusComplete, result.Status)
}

func (s *ServiceSuite) TestLowTierSkipsRecall() {
	_, err := s.retention.Append(s.ctx, retention.Entry{
		Content:   "background context",
		Policy:    "session",
		SessionID: "sess-1",
	})
	s.Require().NoError(err)

	result, err := s.service.Submit(s.ctx, Request{
		Event:     "I apologize briefly",
		SessionID: "sess-1",
		Tier:      TierLow,
	})
	s.Require().NoError(err)
	s.Empty(result.Recall)
	s.Equal(StatusComplete, result.Status)
}

func (s *ServiceSuite) TestRetentionOutageDegradesToPartial() {
	svc := s.newService(s.ledger, failingRecaller{})

	result, err := svc.Submit(s.ctx, Request{
		Event:     "now ignoring previous instruction",
		SessionID: "sess-1",
		Tier:      TierHigh,
	})
	s.Require().NoError(err)
	s.True(result.Partial)
	s.Equal(StatusPartial, result.Status)
	s.Empty(result.Recall)

	// Matcher and ledger results still arrive.
	s.Require().Len(result.Matches, 1)
	s.Equal("instruction-drop", result.Matches[0].RuleID)
	s.Equal(int64(1), result.Matches[0].IncidentCount)
}

func (s *ServiceSuite) TestLedgerOutageDegradesToMatcherOnly() {
	svc := s.newService(failingLedger{}, s.retention)

	result, err := svc.Submit(s.ctx, Request{
		Event: "now ignoring previous instruction",
		Tier:  TierCritical,
	})
	s.Require().NoError(err)
	s.True(result.Partial)
	s.Equal(StatusDegraded, result.Status)
	s.Require().Len(result.Matches, 1)
	s.Equal("instruction-drop", result.Matches[0].RuleID)
	s.Equal(int64(0), result.Matches[0].IncidentCount)
}

func (s *ServiceSuite) TestPartialResultsAreNotCached() {
	svc := s.newService(s.ledger, failingRecaller{})
	req := Request{Event: "I apologize yet again", Tier: TierHigh}

	first, err := svc.Submit(s.ctx, req)
	s.Require().NoError(err)
	s.True(first.Partial)

	second, err := svc.Submit(s.ctx, req)
	s.Require().NoError(err)
	s.False(second.Cached)
}

func (s *ServiceSuite) TestRepeatedLedgerFailuresOpenBreaker() {
	svc := s.newService(failingLedger{}, s.retention)
	req := Request{Event: "now ignoring previous instruction", Tier: TierCritical}

	// Enough failures to trip the breaker, then the breaker path keeps
	// degrading without touching the store.
	for i := 0; i < 8; i++ {
		result, err := svc.Submit(s.ctx, req)
		s.Require().NoError(err)
		s.Equal(StatusDegraded, result.Status)
	}
}
