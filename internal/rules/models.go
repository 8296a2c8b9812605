// Package rules defines the failure-pattern rule model and the stateless
// matcher that evaluates text events against a loaded rule set.
package rules

import (
	"regexp"

	dErrors "governor/pkg/domain-errors"
)

// Severity grades how serious a matched pattern is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for match sorting; higher is more severe.
var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// IsValid checks if the severity is one of the supported enum values.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the numeric ordering of the severity; higher is more severe.
func (s Severity) Rank() int {
	return severityRank[s]
}

// ParseSeverity creates a Severity from a string, validating it.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid severity %q", raw)
	}
	return s, nil
}

// TriggerAction prescribes what the validator does with a match.
type TriggerAction string

const (
	ActionLog      TriggerAction = "log"
	ActionWarn     TriggerAction = "warn"
	ActionBlock    TriggerAction = "block"
	ActionEscalate TriggerAction = "escalate"
)

// IsValid checks if the action is one of the supported enum values.
func (a TriggerAction) IsValid() bool {
	switch a {
	case ActionLog, ActionWarn, ActionBlock, ActionEscalate:
		return true
	}
	return false
}

// Recorded reports whether matches with this action are written to the
// violation ledger.
func (a TriggerAction) Recorded() bool {
	return a == ActionBlock || a == ActionEscalate
}

// ParseTriggerAction creates a TriggerAction from a string, validating it.
func ParseTriggerAction(raw string) (TriggerAction, error) {
	a := TriggerAction(raw)
	if !a.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid trigger action %q", raw)
	}
	return a, nil
}

// Rule is one known failure mode: a compiled pattern plus metadata.
// Rules are immutable once loaded; the engine never mutates definitions.
type Rule struct {
	ID          string
	Pattern     *regexp.Regexp
	Severity    Severity
	Action      TriggerAction
	Description string

	// loadIndex preserves rule-set order for deterministic tie-breaks.
	loadIndex int
}

// MatchResult is one rule matched against a submitted event.
type MatchResult struct {
	RuleID   string        `json:"rule_id"`
	Severity Severity      `json:"severity"`
	Action   TriggerAction `json:"trigger_action"`
}
