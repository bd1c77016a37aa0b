package api

import (
	"fmt"

	"github.com/nerrad567/authgate/internal/auth"
	"github.com/nerrad567/authgate/internal/infrastructure/config"
)

// PolicyFromConfig compiles the configured route rules, in order.
func PolicyFromConfig(routes []config.RouteRule) (*auth.Policy, error) {
	rules := make([]auth.Rule, 0, len(routes))
	for i, rt := range routes {
		roles, err := auth.ParseRoleSet(rt.Roles)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, rt.Pattern, err)
		}
		rule, err := auth.NewRule(rt.Pattern, roles)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return auth.NewPolicy(rules...), nil
}
