package auth

import (
	"fmt"
	"path"
	"strings"
)

// Decision is the outcome of an authorisation check.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionUnauthenticated
	DecisionForbidden
)

// Err returns the sentinel for a denial, nil for DecisionAllow.
func (d Decision) Err() error {
	switch d {
	case DecisionUnauthenticated:
		return ErrUnauthenticated
	case DecisionForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionForbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Authorize checks an identity against the roles a route accepts.
// An empty set is public; a nil identity is anonymous.
func Authorize(required RoleSet, id *Identity) Decision {
	if required.Public() {
		return DecisionAllow
	}
	if id == nil {
		return DecisionUnauthenticated
	}
	if !required.SatisfiedBy(id.Role) {
		return DecisionForbidden
	}
	return DecisionAllow
}

// Rule maps a path pattern to the roles it accepts.
//
// Patterns are slash-separated. A "**" segment matches any number of
// segments (including none); any other segment is matched with path.Match,
// so "*" matches exactly one segment.
type Rule struct {
	Pattern  string
	Roles    RoleSet
	segments []string
}

// NewRule compiles a rule.
func NewRule(pattern string, roles RoleSet) (Rule, error) {
	if !strings.HasPrefix(pattern, "/") {
		return Rule{}, fmt.Errorf("route pattern %q must start with /", pattern)
	}
	segs := splitPath(pattern)
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return Rule{}, fmt.Errorf("route pattern %q: empty or dot segment", pattern)
		}
		if s == "**" {
			continue
		}
		if _, err := path.Match(s, ""); err != nil {
			return Rule{}, fmt.Errorf("route pattern %q: %w", pattern, err)
		}
	}
	for _, r := range roles {
		if !r.Valid() {
			return Rule{}, fmt.Errorf("route pattern %q: %w: %q", pattern, ErrUnknownRole, r)
		}
	}
	return Rule{Pattern: pattern, Roles: roles, segments: segs}, nil
}

// Matches reports whether the rule applies to the request path.
func (r Rule) Matches(requestPath string) bool {
	return matchSegments(r.segments, splitPath(requestPath))
}

// Policy is an ordered rule list. The first matching rule decides.
type Policy struct {
	rules []Rule
}

// NewPolicy creates a policy from rules in priority order.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// Rules returns the rules in priority order.
func (p *Policy) Rules() []Rule {
	return p.rules
}

// Match returns the first rule matching requestPath.
func (p *Policy) Match(requestPath string) (Rule, bool) {
	segs := splitPath(requestPath)
	for _, r := range p.rules {
		if matchSegments(r.segments, segs) {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate decides access to requestPath. A path no rule matches requires
// authentication.
func (p *Policy) Evaluate(requestPath string, id *Identity) Decision {
	rule, ok := p.Match(requestPath)
	if !ok {
		if id == nil {
			return DecisionUnauthenticated
		}
		return DecisionAllow
	}
	return Authorize(rule.Roles, id)
}

// CanonicalPath reports whether a raw request path, as the router sees it,
// has no dot or empty segments and no encoded separators. Rules are matched
// segment by segment without decoding or cleaning, so only canonical paths
// are guaranteed to be judged by the same rule the router dispatches on.
func CanonicalPath(rawPath string) bool {
	if !strings.HasPrefix(rawPath, "/") || strings.Contains(rawPath, `\`) {
		return false
	}
	lower := strings.ToLower(rawPath)
	for _, enc := range []string{"%2f", "%5c", "%2e"} {
		if strings.Contains(lower, enc) {
			return false
		}
	}
	if rawPath == "/" {
		return true
	}
	for _, s := range strings.Split(strings.TrimSuffix(rawPath[1:], "/"), "/") {
		if s == "" || s == "." || s == ".." {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], segs[0]); !ok { //nolint:errcheck // patterns validated in NewRule
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
