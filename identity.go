package auth

import "fmt"

// Identity is the canonical record of who is logged in.
type Identity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	StudentNumber string `json:"studentNumber,omitempty"`
}

// HasRole checks the exact role
func (i Identity) HasRole(role Role) bool {
	return i.Role == role
}

// IsAtLeast checks if the identity role meets minRole
func (i Identity) IsAtLeast(minRole Role) bool {
	return i.Role.IsAtLeast(minRole)
}

// DisplayName falls back to email then id
func (i Identity) DisplayName() string {
	switch {
	case i.Name != "":
		return i.Name
	case i.Email != "":
		return i.Email
	default:
		return i.ID
	}
}

func (i Identity) String() string {
	return fmt.Sprintf("id=%s name=%q email=%s role=%s", i.ID, i.Name, i.Email, i.Role)
}
