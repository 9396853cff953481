package retention

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/docledger/docledger/internal/document"
	"gopkg.in/yaml.v3"
)

// Registry resolves policies by id. It is read-only after construction.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry builds a registry from the given policies. Duplicate ids and
// invalid modes are rejected.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if p.ID == "" {
			return nil, fmt.Errorf("retention policy without id")
		}
		if !p.DefaultMode.Valid() {
			return nil, fmt.Errorf("retention policy %q: unknown mode %q", p.ID, p.DefaultMode)
		}
		if p.Period < 0 {
			return nil, fmt.Errorf("retention policy %q: negative period", p.ID)
		}
		if _, dup := r.policies[p.ID]; dup {
			return nil, fmt.Errorf("retention policy %q defined twice", p.ID)
		}
		r.policies[p.ID] = p
	}
	return r, nil
}

// Resolve returns the policy with the given id, or nil when unknown. A nil
// registry resolves nothing.
func (r *Registry) Resolve(id string) *Policy {
	if r == nil || id == "" {
		return nil
	}
	p, ok := r.policies[id]
	if !ok {
		return nil
	}
	return &p
}

// List returns all policies ordered by id.
func (r *Registry) List() []Policy {
	if r == nil {
		return nil
	}
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type policyFile struct {
	Policies []struct {
		ID         string `yaml:"id"`
		PeriodDays int    `yaml:"periodDays"`
		Period     string `yaml:"period"`
		Mode       string `yaml:"mode"`
	} `yaml:"policies"`
}

// ParsePolicies decodes a YAML policy document:
//
//	policies:
//	  - id: invoices
//	    periodDays: 2555
//	    mode: hard-locked
func ParsePolicies(data []byte) (*Registry, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse retention policies: %w", err)
	}
	policies := make([]Policy, 0, len(f.Policies))
	for _, raw := range f.Policies {
		p := Policy{
			ID:          raw.ID,
			Period:      time.Duration(raw.PeriodDays) * 24 * time.Hour,
			DefaultMode: document.DeletionMode(raw.Mode),
		}
		if raw.Period != "" {
			d, err := time.ParseDuration(raw.Period)
			if err != nil {
				return nil, fmt.Errorf("retention policy %q: period: %w", raw.ID, err)
			}
			p.Period += d
		}
		policies = append(policies, p)
	}
	return NewRegistry(policies...)
}

// LoadPolicies reads a YAML policy file. An empty path yields an empty
// registry, under which every policy id is unresolvable.
func LoadPolicies(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read retention policies: %w", err)
	}
	return ParsePolicies(data)
}
