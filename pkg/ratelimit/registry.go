package ratelimit

import (
	"fmt"
	"io"
	"maps"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleSet is the declarative shape of the rule table, as written in a rules file:
//
//	rules:
//	  per_ip:
//	    login: {limit: 5, window: 5m, penalty: 15m}
//	roles:
//	  evaluator: {limit: 200, window: 1m}
//
// Roles override the per-user general rule for users of that role.
type RuleSet struct {
	Rules map[Dimension]map[Category]Rule `yaml:"rules" json:"rules"`
	Roles map[string]Rule                 `yaml:"roles" json:"roles"`
}

// DefaultRuleSet returns the built-in rule table.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: map[Dimension]map[Category]Rule{
			DimensionIP: {
				CategoryLogin:  {Limit: 5, Window: 5 * time.Minute, Penalty: 15 * time.Minute},
				CategoryUpload: {Limit: 10, Window: time.Minute},
				CategoryStrict: {Limit: 20, Window: time.Minute, Penalty: 5 * time.Minute},
				CategoryAPI:    {Limit: 60, Window: time.Minute},
			},
			DimensionUser: {
				CategoryGeneral: {Limit: 100, Window: time.Minute},
			},
			DimensionEndpoint: {
				CategoryExport: {Limit: 10, Window: 10 * time.Minute},
				CategoryBulk:   {Limit: 5, Window: 5 * time.Minute},
			},
			DimensionGlobal: {
				CategorySystem: {Limit: 10000, Window: time.Minute},
			},
		},
		Roles: map[string]Rule{
			"evaluator": {Limit: 200, Window: time.Minute},
			"admin":     {Limit: 300, Window: time.Minute},
		},
	}
}

// LoadRuleSet decodes a YAML rules document.
func LoadRuleSet(r io.Reader) (RuleSet, error) {
	var set RuleSet
	if err := yaml.NewDecoder(r).Decode(&set); err != nil && err != io.EOF {
		return RuleSet{}, fmt.Errorf("%w: decode rules: %v", ErrInvalidRule, err)
	}
	return set, nil
}

// Merge returns a copy of s with every rule of other layered on top.
func (s RuleSet) Merge(other RuleSet) RuleSet {
	out := RuleSet{
		Rules: make(map[Dimension]map[Category]Rule, len(s.Rules)),
		Roles: maps.Clone(s.Roles),
	}
	if out.Roles == nil {
		out.Roles = make(map[string]Rule)
	}
	for dim, cats := range s.Rules {
		out.Rules[dim] = maps.Clone(cats)
	}
	for dim, cats := range other.Rules {
		if out.Rules[dim] == nil {
			out.Rules[dim] = make(map[Category]Rule, len(cats))
		}
		maps.Copy(out.Rules[dim], cats)
	}
	maps.Copy(out.Roles, other.Roles)
	return out
}

// Registry is the validated, immutable rule table.
type Registry struct {
	rules map[Dimension]map[Category]Rule
	roles map[string]Rule
}

// NewRegistry validates set and builds a Registry from it. Any invalid rule is
// reported here so that a bad configuration never reaches request time.
func NewRegistry(set RuleSet) (*Registry, error) {
	reg := &Registry{
		rules: make(map[Dimension]map[Category]Rule, len(set.Rules)),
		roles: make(map[string]Rule, len(set.Roles)),
	}
	for dim, cats := range set.Rules {
		if !dim.Valid() {
			return nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidRule, dim)
		}
		reg.rules[dim] = make(map[Category]Rule, len(cats))
		for cat, rule := range cats {
			if err := rule.validate(); err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidRule, dim, cat, err)
			}
			reg.rules[dim][cat] = rule
		}
	}
	for role, rule := range set.Roles {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("%w: role %s: %v", ErrInvalidRule, role, err)
		}
		reg.roles[role] = rule
	}

	// 兜底规则必须存在，保证每个请求至少匹配两条规则
	for _, required := range []struct {
		dim Dimension
		cat Category
	}{{DimensionIP, CategoryAPI}, {DimensionGlobal, CategorySystem}} {
		if _, ok := reg.Rule(required.dim, required.cat); !ok {
			return nil, fmt.Errorf("%w: missing required rule %s/%s", ErrInvalidRule, required.dim, required.cat)
		}
	}
	return reg, nil
}

// DefaultRegistry returns a registry built from DefaultRuleSet.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(DefaultRuleSet())
	if err != nil {
		panic(err)
	}
	return reg
}

func (r Rule) validate() error {
	switch {
	case r.Limit <= 0:
		return fmt.Errorf("limit must be positive, got %d", r.Limit)
	case r.Window <= 0:
		return fmt.Errorf("window must be positive, got %s", r.Window)
	case r.Penalty < 0:
		return fmt.Errorf("penalty must not be negative, got %s", r.Penalty)
	case r.BurstLimit < 0:
		return fmt.Errorf("burst limit must not be negative, got %d", r.BurstLimit)
	}
	return nil
}

// Rule looks up the rule for a dimension and category.
func (r *Registry) Rule(dim Dimension, cat Category) (Rule, bool) {
	rule, ok := r.rules[dim][cat]
	return rule, ok
}

// UserRule returns the per-user rule for role, falling back to the general rule.
func (r *Registry) UserRule(role string) (Rule, bool) {
	if rule, ok := r.roles[role]; ok && role != "" {
		return rule, true
	}
	return r.Rule(DimensionUser, CategoryGeneral)
}

// RuleSet returns a copy of the registry contents.
func (r *Registry) RuleSet() RuleSet {
	return RuleSet{}.Merge(RuleSet{Rules: r.rules, Roles: r.roles})
}

// Retention is the longest time any key needs to be kept: the widest window
// plus the expiry buffer, or the longest penalty.
func (r *Registry) Retention() time.Duration {
	var longest time.Duration
	check := func(rule Rule) {
		longest = max(longest, rule.Window+keyTTLBuffer, rule.Penalty)
	}
	for _, cats := range r.rules {
		for _, rule := range cats {
			check(rule)
		}
	}
	for _, rule := range r.roles {
		check(rule)
	}
	return longest
}
