package auth

import (
	"fmt"
	"strings"
)

// Role is an authorisation tier. The set is closed: only the constants
// below are valid and ParseRole rejects anything else.
type Role string

const (
	// RoleUser is a regular customer account. Default role on signup.
	RoleUser Role = "USER"

	// RoleManager runs day-to-day operations (catalog, orders) and can
	// look up customer accounts.
	RoleManager Role = "MANAGER"

	// RoleAdmin has full control, including account administration.
	// Satisfies every MANAGER and USER requirement.
	RoleAdmin Role = "ADMIN"
)

// ValidRoles lists every role, lowest first.
var ValidRoles = []Role{RoleUser, RoleManager, RoleAdmin}

// roleImplies is the partial order: each role maps to every role it satisfies,
// itself included.
var roleImplies = map[Role][]Role{
	RoleUser:    {RoleUser},
	RoleManager: {RoleManager, RoleUser},
	RoleAdmin:   {RoleAdmin, RoleManager, RoleUser},
}

// ParseRole converts a role name (case-insensitive) into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleImplies[r]
	return ok
}

// Satisfies reports whether a holder of r meets a requirement for required.
func (r Role) Satisfies(required Role) bool {
	for _, implied := range roleImplies[r] {
		if implied == required {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (r Role) String() string { return string(r) }

// RoleSet is the set of roles a route accepts. An empty set means public.
type RoleSet []Role

// ParseRoleSet parses role names from configuration.
func ParseRoleSet(names []string) (RoleSet, error) {
	set := make(RoleSet, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		set = append(set, r)
	}
	return set, nil
}

// Public reports whether the set imposes no requirement.
func (s RoleSet) Public() bool { return len(s) == 0 }

// SatisfiedBy reports whether role meets at least one role in the set.
func (s RoleSet) SatisfiedBy(role Role) bool {
	for _, required := range s {
		if role.Satisfies(required) {
			return true
		}
	}
	return false
}
