package auth

import (
	"net/http"
	"strings"
)

// Rule requires Role for requests whose path starts with Prefix. When Methods
// is non-empty the rule only applies to those methods.
type Rule struct {
	Prefix  string
	Methods []string
	Role    Role
}

func (r Rule) matches(req *http.Request) bool {
	if !strings.HasPrefix(req.URL.Path, r.Prefix) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == req.Method {
			return true
		}
	}
	return false
}

// Policy maps requests to the role they need. Rules are tried in order.
type Policy struct {
	exempt   map[string]struct{}
	prefixes []string
	rules    []Rule
}

var defaultRules = []Rule{
	{Prefix: "/api/v1/admin/", Role: RoleAdmin},
	{Prefix: "/api/v1/incidents", Role: RoleRecipient},
	{Prefix: "/api/v1/devices/", Role: RoleViewer},
	{Prefix: "/api/v1/sites/", Methods: []string{http.MethodGet, http.MethodHead}, Role: RoleViewer},
	{Prefix: "/api/", Methods: []string{http.MethodGet, http.MethodHead, http.MethodOptions}, Role: RoleViewer},
	{Prefix: "/api/", Role: RoleAdmin},
}

// NewDefaultPolicy returns the service routes plus the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	return NewPolicy(defaultRules, exemptPaths, exemptPrefixes)
}

// NewPolicy builds a policy from explicit rules.
func NewPolicy(rules []Rule, exemptPaths []string, exemptPrefixes []string) Policy {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		exempt[path] = struct{}{}
	}
	return Policy{exempt: exempt, prefixes: exemptPrefixes, rules: rules}
}

// IsExempt reports whether the request skips authentication entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.exempt[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the role the first matching rule demands. ok is false
// for paths outside every rule.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.rules {
		if rule.matches(r) {
			return rule.Role, true
		}
	}
	return "", false
}
