package rules

import "sort"

// Matcher evaluates text events against a rule set snapshot. It is purely
// functional: no side effects, identical input yields identical output, and
// it never blocks.
type Matcher struct {
	set *Set
}

// NewMatcher creates a matcher over a validated rule set.
func NewMatcher(set *Set) *Matcher {
	return &Matcher{set: set}
}

// Match evaluates every rule against the event text and returns all matches
// ordered by descending severity, then rule load order. Rules are evaluated
// exhaustively; a single event can violate several patterns and downstream
// logic needs the full list. An event matching nothing returns an empty
// slice, not an error.
func (m *Matcher) Match(event string) []MatchResult {
	matches := make([]MatchResult, 0)
	for _, rule := range m.set.rules {
		if rule.Pattern.MatchString(event) {
			matches = append(matches, MatchResult{
				RuleID:   rule.ID,
				Severity: rule.Severity,
				Action:   rule.Action,
			})
		}
	}

	// Matches arrive in load order, so a stable sort by severity alone
	// gives the deterministic severity-then-load-order contract.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Severity.Rank() > matches[j].Severity.Rank()
	})
	return matches
}
