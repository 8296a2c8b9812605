package retention

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policies is the validated, immutable set of named retention policies.
type Policies struct {
	byName map[string]Policy
	order  []string
}

// Get returns the named policy.
func (p *Policies) Get(name string) (Policy, bool) {
	policy, ok := p.byName[name]
	return policy, ok
}

// Names returns policy names in load order.
func (p *Policies) Names() []string {
	return p.order
}

// All returns policies in load order.
func (p *Policies) All() []Policy {
	out := make([]Policy, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.byName[name])
	}
	return out
}

type policyFile struct {
	Policies []Policy `yaml:"policies"`
}

// LoadPoliciesFile reads and validates a YAML policy file. A malformed
// policy aborts the load naming the failing policy; startup must abort on
// error.
func LoadPoliciesFile(path string) (*Policies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policies %s: %w", path, err)
	}
	return LoadPolicies(data)
}

// LoadPolicies validates raw YAML policy bytes.
func LoadPolicies(data []byte) (*Policies, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}
	return NewPolicies(file.Policies)
}

// NewPolicies validates a policy list into an immutable set.
func NewPolicies(list []Policy) (*Policies, error) {
	set := &Policies{byName: make(map[string]Policy, len(list))}
	for i, p := range list {
		if p.Name == "" {
			return nil, fmt.Errorf("policy %d: missing name", i)
		}
		if _, dup := set.byName[p.Name]; dup {
			return nil, fmt.Errorf("policy %q: duplicate name", p.Name)
		}
		if p.MinSalience < 0 || p.MinSalience > 1 {
			return nil, fmt.Errorf("policy %q: min_salience_threshold %v outside [0,1]", p.Name, p.MinSalience)
		}
		set.byName[p.Name] = p
		set.order = append(set.order, p.Name)
	}
	if len(set.order) == 0 {
		return nil, fmt.Errorf("no retention policies defined")
	}
	return set, nil
}
