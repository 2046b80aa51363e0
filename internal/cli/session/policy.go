package session

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy maps route patterns to access classes. A pattern is an exact path
// ("/dashboard") or a subtree ("/admin/*", which also matches "/admin").
// When several patterns match, the longest one wins and an exact pattern
// beats a subtree of the same base.
type Policy struct {
	targets  Targets
	exact    map[string]Class
	subtrees []subtree
}

type subtree struct {
	base  string
	class Class
}

// RouteRule is one entry of a policy file
type RouteRule struct {
	Path   string `yaml:"path"`
	Access string `yaml:"access"`
}

type policyFile struct {
	Redirects Targets     `yaml:"redirects"`
	Routes    []RouteRule `yaml:"routes"`
}

// NewPolicy validates rules and builds a policy. Every pattern must have
// exactly one class.
func NewPolicy(targets Targets, rules []RouteRule) (*Policy, error) {
	p := &Policy{
		targets: targets.withDefaults(),
		exact:   make(map[string]Class),
	}

	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		class, err := ParseClass(rule.Access)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rule.Path, err)
		}

		pattern := strings.TrimSpace(rule.Path)
		if pattern == "" {
			return nil, fmt.Errorf("%w: empty route path", ErrInvalidPolicy)
		}

		base, isSubtree := strings.CutSuffix(pattern, "/*")
		key := "exact:" + normalizeRoute(pattern)
		if isSubtree {
			key = "subtree:" + normalizeRoute(base)
		}
		// Keyed on the normalized form: "/a" and "/a/" are the same route
		if seen[key] {
			return nil, fmt.Errorf("%w: route %q listed more than once", ErrInvalidPolicy, pattern)
		}
		seen[key] = true

		if isSubtree {
			p.subtrees = append(p.subtrees, subtree{base: normalizeRoute(base), class: class})
			continue
		}
		p.exact[normalizeRoute(pattern)] = class
	}

	sort.SliceStable(p.subtrees, func(i, j int) bool {
		return len(p.subtrees[i].base) > len(p.subtrees[j].base)
	})
	return p, nil
}

// DefaultPolicy returns the RazorLinks route table
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTargets, []RouteRule{
		{Path: "/login", Access: "public"},
		{Path: "/register", Access: "public"},
		{Path: "/forgot-password", Access: "public"},
		{Path: "/reset-password", Access: "public"},
		{Path: "/dashboard/*", Access: "authenticated"},
		{Path: "/admin/*", Access: "admin"},
	})
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPolicy parses a YAML policy document
func LoadPolicy(r io.Reader) (*Policy, error) {
	var doc policyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty policy document", ErrInvalidPolicy)
		}
		return nil, fmt.Errorf("failed to parse route policy: %w", err)
	}
	return NewPolicy(doc.Redirects, doc.Routes)
}

// LoadPolicyFile reads a YAML policy from path
func LoadPolicyFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open route policy: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// Targets returns the redirect targets
func (p *Policy) Targets() Targets {
	return p.targets
}

// Lookup returns the class of route. ok is false for unguarded routes.
func (p *Policy) Lookup(route string) (Class, bool) {
	route = normalizeRoute(route)
	if class, ok := p.exact[route]; ok {
		return class, true
	}
	for _, st := range p.subtrees {
		if route == st.base || strings.HasPrefix(route, strings.TrimSuffix(st.base, "/")+"/") {
			return st.class, true
		}
	}
	return 0, false
}

// Evaluate decides access to route for s. Unguarded routes are allowed.
func (p *Policy) Evaluate(route string, s Session) Decision {
	class, ok := p.Lookup(route)
	if !ok {
		return Allow()
	}
	return EvaluateRouteAccess(class, s, p.targets)
}

// normalizeRoute strips query and fragment, ensures a leading slash and
// drops trailing slashes
func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if u, err := url.Parse(route); err == nil {
		route = u.Path
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
		if route == "" {
			route = "/"
		}
	}
	return route
}
