package ratelimit

import (
	"fmt"
	"strings"
)

// Matcher maps a request predicate to a rule category within a dimension.
// Matchers of one dimension are tried in order and the first hit wins;
// dimensions are independent of each other.
type Matcher struct {
	Dimension Dimension
	Category  Category
	Match     func(Request) bool
}

// PathContains matches requests whose path contains any of subs.
func PathContains(subs ...string) func(Request) bool {
	return func(req Request) bool {
		for _, sub := range subs {
			if strings.Contains(req.Path, sub) {
				return true
			}
		}
		return false
	}
}

// Always matches every request.
func Always(Request) bool { return true }

// Authenticated matches requests carrying a user id.
func Authenticated(req Request) bool {
	return strings.TrimSpace(req.UserID) != ""
}

// DefaultMatchers is the built-in dispatch table.
var DefaultMatchers = []Matcher{
	{DimensionIP, CategoryLogin, PathContains("/auth/login")},
	{DimensionIP, CategoryUpload, PathContains("/files/", "/upload")},
	{DimensionIP, CategoryStrict, PathContains("/admin/")},
	{DimensionIP, CategoryAPI, Always},
	{DimensionUser, CategoryGeneral, Authenticated},
	{DimensionEndpoint, CategoryExport, PathContains("/export")},
	{DimensionEndpoint, CategoryBulk, PathContains("/bulk")},
	{DimensionGlobal, CategorySystem, Always},
}

// Selection is one (key, rule) pair that applies to a request.
type Selection struct {
	Key  Key
	Rule Rule
}

// Selector resolves the rules that apply to a request.
type Selector struct {
	registry *Registry
	matchers map[Dimension][]Matcher
}

// NewSelector builds a selector over reg. Every matcher must point at a rule
// that exists in the registry.
func NewSelector(reg *Registry, matchers ...Matcher) (*Selector, error) {
	if len(matchers) == 0 {
		matchers = DefaultMatchers
	}
	s := &Selector{
		registry: reg,
		matchers: make(map[Dimension][]Matcher, len(Dimensions)),
	}
	for _, m := range matchers {
		if m.Match == nil {
			return nil, fmt.Errorf("%w: matcher %s/%s has no predicate", ErrInvalidRule, m.Dimension, m.Category)
		}
		if _, ok := reg.Rule(m.Dimension, m.Category); !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownRule, m.Dimension, m.Category)
		}
		s.matchers[m.Dimension] = append(s.matchers[m.Dimension], m)
	}
	return s, nil
}

// Registry returns the registry the selector reads from.
func (s *Selector) Registry() *Registry {
	return s.registry
}

// Select returns the ordered (key, rule) pairs for req: per_ip, per_user,
// per_endpoint, then global.
func (s *Selector) Select(req Request) []Selection {
	client := ClientIdentifier(req)
	selections := make([]Selection, 0, len(Dimensions))

	for _, dim := range Dimensions {
		for _, m := range s.matchers[dim] {
			if !m.Match(req) {
				continue
			}
			selections = append(selections, s.selection(dim, m.Category, client, req))
			break
		}
	}

	// 全局规则总是生效，即便自定义匹配表里漏掉了它
	if len(selections) == 0 || selections[len(selections)-1].Key.Dimension != DimensionGlobal {
		rule, _ := s.registry.Rule(DimensionGlobal, CategorySystem)
		selections = append(selections, Selection{Key: NewKey(DimensionGlobal, CategorySystem, systemSubject, ""), Rule: rule})
	}
	return selections
}

func (s *Selector) selection(dim Dimension, cat Category, client string, req Request) Selection {
	switch dim {
	case DimensionUser:
		rule, _ := s.registry.UserRule(req.UserRole)
		return Selection{Key: NewKey(dim, cat, req.UserID, ""), Rule: rule}
	case DimensionEndpoint:
		rule, _ := s.registry.Rule(dim, cat)
		subject := client
		if Authenticated(req) {
			subject = strings.TrimSpace(req.UserID)
		}
		return Selection{Key: NewKey(dim, cat, subject, req.Path), Rule: rule}
	case DimensionGlobal:
		rule, _ := s.registry.Rule(dim, cat)
		return Selection{Key: NewKey(dim, cat, systemSubject, ""), Rule: rule}
	default:
		rule, _ := s.registry.Rule(dim, cat)
		return Selection{Key: NewKey(dim, cat, client, ""), Rule: rule}
	}
}

// ClientIdentifier prefers the first forwarded-for entry, then the client ip,
// then the literal "unknown".
func ClientIdentifier(req Request) string {
	if fwd := strings.TrimSpace(req.ForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(req.ClientIP); ip != "" {
		return ip
	}
	return unknownClient
}
