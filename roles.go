package auth

import "strings"

// Role is the closed set of privilege levels a session can carry.
type Role string

const (
	// RoleStudent is the lowest privilege and the fail-safe default
	RoleStudent Role = "student"
	// RoleStaff manages the catalog and loans
	RoleStaff Role = "staff"
	// RoleAdmin has full access
	RoleAdmin Role = "admin"
)

var roleHierarchy = map[Role]int{
	RoleStudent: 0,
	RoleStaff:   1,
	RoleAdmin:   2,
}

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	_, ok := roleHierarchy[r]
	return ok
}

// IsAtLeast checks if this role meets the minimum required level.
// Unknown roles never satisfy any requirement.
func (r Role) IsAtLeast(minRole Role) bool {
	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

func (r Role) String() string {
	return string(r)
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleStudent,
		RoleStaff,
		RoleAdmin,
	}
}

// ParseRole safely parses an exact role name
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// ClassifyRole maps a free-form role claim onto the closed set by substring:
// anything mentioning "admin" is admin, then "staff", everything else is
// student. It never fails open to a higher privilege.
func ClassifyRole(raw string) Role {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case value == "":
		return RoleStudent
	case strings.Contains(value, "admin"):
		return RoleAdmin
	case strings.Contains(value, "staff"):
		return RoleStaff
	default:
		return RoleStudent
	}
}

// HighestRole classifies each value and returns the most privileged result.
func HighestRole(values ...string) Role {
	best := RoleStudent
	for _, value := range values {
		if role := ClassifyRole(value); role.IsAtLeast(best) {
			best = role
		}
	}
	return best
}
