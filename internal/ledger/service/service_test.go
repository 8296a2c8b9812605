package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"governor/internal/audit"
	"governor/internal/ledger"
	"governor/internal/ledger/store/memory"
	"governor/internal/rules"
	"governor/pkg/platform/sentinel"
)

// captureSink collects streamed events.
type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureSink) Enqueue(event audit.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

type ServiceSuite struct {
	suite.Suite
	svc  *Service
	sink *captureSink
	ctx  context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.sink = &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(memory.New(), ledger.DefaultThresholds(),
		WithLogger(logger),
		WithEventSink(s.sink),
	)
	require.NoError(s.T(), err)
	s.svc = svc
	s.ctx = context.Background()
}

func (s *ServiceSuite) overclaim() rules.MatchResult {
	return rules.MatchResult{
		RuleID:   "overclaim",
		Severity: rules.SeverityCritical,
		Action:   rules.ActionBlock,
	}
}

func (s *ServiceSuite) TestRecordMatchThreeTimes() {
	// Rule matched three times across three calls leaves an exact count.
	for range 3 {
		_, err := s.svc.RecordMatch(s.ctx, s.overclaim())
		s.Require().NoError(err)
	}

	standing, err := s.svc.Get(s.ctx, "overclaim")
	s.Require().NoError(err)
	s.Equal(int64(3), standing.IncidentCount)
	s.Equal(ledger.LevelLow, standing.EscalationLevel)
}

func (s *ServiceSuite) TestEscalationThresholds() {
	for i := range 12 {
		standing, err := s.svc.RecordMatch(s.ctx, s.overclaim())
		s.Require().NoError(err)

		count := int64(i + 1)
		switch {
		case count >= 11:
			s.Equal(ledger.LevelCritical, standing.EscalationLevel)
		case count >= 5:
			s.Equal(ledger.LevelMedium, standing.EscalationLevel)
		default:
			s.Equal(ledger.LevelLow, standing.EscalationLevel)
		}
	}
}

func (s *ServiceSuite) TestEscalationMonotonicity() {
	prev := ledger.LevelLow
	rank := map[ledger.EscalationLevel]int{
		ledger.LevelLow: 0, ledger.LevelMedium: 1, ledger.LevelCritical: 2,
	}
	for range 20 {
		_, err := s.svc.RecordMatch(s.ctx, s.overclaim())
		s.Require().NoError(err)
		level, err := s.svc.Escalation(s.ctx, "overclaim")
		s.Require().NoError(err)
		s.GreaterOrEqual(rank[level], rank[prev])
		prev = level
	}
}

func (s *ServiceSuite) TestEscalationNeverRecordedIsLow() {
	level, err := s.svc.Escalation(s.ctx, "never-seen")
	s.Require().NoError(err)
	s.Equal(ledger.LevelLow, level)
}

func (s *ServiceSuite) TestGetNeverRecordedIsNotFound() {
	_, err := s.svc.Get(s.ctx, "never-seen")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *ServiceSuite) TestRecordStreamsEvent() {
	_, err := s.svc.RecordMatch(s.ctx, s.overclaim())
	s.Require().NoError(err)

	s.Require().Len(s.sink.events, 1)
	event := s.sink.events[0]
	s.Equal("overclaim", event.RuleID)
	s.Equal("critical", event.Severity)
	s.Equal("block", event.Action)
	s.Equal(int64(1), event.IncidentCount)
	s.NotEmpty(event.ID)
}

func (s *ServiceSuite) TestExportSnapshot() {
	_, err := s.svc.RecordMatch(s.ctx, s.overclaim())
	s.Require().NoError(err)
	_, err = s.svc.RecordMatch(s.ctx, rules.MatchResult{
		RuleID: "missing-evidence", Severity: rules.SeverityMedium, Action: rules.ActionEscalate,
	})
	s.Require().NoError(err)

	standings, err := s.svc.Export(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(standings, 2)
	s.Equal("missing-evidence", standings[0].RuleID)
	s.Equal("overclaim", standings[1].RuleID)
}

func (s *ServiceSuite) TestRejectsInvalidThresholds() {
	_, err := New(memory.New(), ledger.Thresholds{MediumAt: 10, CriticalAt: 5})
	s.Error(err)
}
