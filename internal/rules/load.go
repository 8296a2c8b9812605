package rules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ruleFile is the YAML shape of the external rule set.
type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	ID          string `yaml:"id"`
	Pattern     string `yaml:"pattern"`
	Severity    string `yaml:"severity"`
	Action      string `yaml:"trigger_action"`
	Description string `yaml:"description"`
}

// Set is an immutable, validated rule set snapshot.
type Set struct {
	rules []Rule
}

// Rules returns the rules in load order.
func (s *Set) Rules() []Rule {
	return s.rules
}

// Len returns the number of rules in the set.
func (s *Set) Len() int {
	return len(s.rules)
}

// LoadFile reads and validates a YAML rule set. Any malformed entry aborts
// the load naming the offending rule ID; a rule set that fails here must
// abort startup.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return Load(data)
}

// Load validates raw YAML rule-set bytes into a Set.
func Load(data []byte) (*Set, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	return newSet(file.Rules)
}

// newSet validates entries into an immutable Set. Unknown severities and
// trigger actions are rejected here rather than silently defaulted, so a bad
// rule can never reach match time.
func newSet(entries []ruleEntry) (*Set, error) {
	seen := make(map[string]struct{}, len(entries))
	rules := make([]Rule, 0, len(entries))

	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("rule %d: missing id", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("rule %q: duplicate id", e.ID)
		}
		seen[e.ID] = struct{}{}

		if e.Pattern == "" {
			return nil, fmt.Errorf("rule %q: missing pattern", e.ID)
		}
		pattern, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid pattern: %w", e.ID, err)
		}
		severity, err := ParseSeverity(e.Severity)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", e.ID, err)
		}
		action, err := ParseTriggerAction(e.Action)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", e.ID, err)
		}

		rules = append(rules, Rule{
			ID:          e.ID,
			Pattern:     pattern,
			Severity:    severity,
			Action:      action,
			Description: e.Description,
			loadIndex:   i,
		})
	}

	return &Set{rules: rules}, nil
}
