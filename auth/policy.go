package auth

import (
	"strings"
)

// Policy says what a route requires of the caller's credential.
type Policy int

const (
	// PolicyRequired rejects requests without a valid credential.
	PolicyRequired Policy = iota
	// PolicyOptional validates a credential when present and falls back to anonymous
	// when it is absent or rejected.
	PolicyOptional
	// PolicyExempt never looks at the credential.
	PolicyExempt
)

func (p Policy) String() string {
	switch p {
	case PolicyOptional:
		return "optional"
	case PolicyExempt:
		return "exempt"
	default:
		return "required"
	}
}

// DefaultExemptPaths are reachable without a credential.
var DefaultExemptPaths = []string{
	"/actuator/health",
	"/actuator/health/**",
	"/grpc.health.v1.Health/**",
}

// RoutePolicy maps request paths to a Policy. Patterns are exact paths, or prefixes
// ending in "/**" that also match the prefix itself. Unmatched paths are Required.
type RoutePolicy struct {
	exempt   []string
	optional []string
}

// NewRoutePolicy builds a RoutePolicy. DefaultExemptPaths are always exempt.
func NewRoutePolicy(exempt, optional []string) *RoutePolicy {
	return &RoutePolicy{
		exempt:   append(append([]string{}, DefaultExemptPaths...), exempt...),
		optional: append([]string{}, optional...),
	}
}

// For returns the policy of path regardless of method. Exempt patterns win over optional
// ones, and a path matching neither is PolicyRequired.
func (p *RoutePolicy) For(_ string, path string) Policy {
	if p == nil {
		return PolicyRequired
	}
	if matchAny(p.exempt, path) {
		return PolicyExempt
	}
	if matchAny(p.optional, path) {
		return PolicyOptional
	}
	return PolicyRequired
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if match(pattern, path) {
			return true
		}
	}
	return false
}

func match(pattern, path string) bool {
	prefix, wildcard := strings.CutSuffix(pattern, "/**")
	if !wildcard {
		return pattern == path
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
