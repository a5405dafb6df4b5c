package domain

import "fmt"

// Role is a principal's privilege level. Roles form a total order
// (client < admin < super_admin); privilege checks compare ranks, never
// strings, so an unknown role can never satisfy any requirement.
type Role string

const (
	RoleClient     Role = "client"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole validates a stored or wire-format role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleAdmin, RoleSuperAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("domain: unknown role %q", s)
	}
}

// Rank returns the role's position in the total order. Unknown roles rank
// below every valid role.
func (r Role) Rank() int {
	switch r {
	case RoleClient:
		return 0
	case RoleAdmin:
		return 1
	case RoleSuperAdmin:
		return 2
	default:
		return -1
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool { return r.Rank() >= 0 }

// AtLeast reports whether r satisfies a minimum role requirement. An
// invalid role never satisfies anything, including an invalid minimum.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.Rank() >= min.Rank()
}

func (r Role) String() string { return string(r) }
