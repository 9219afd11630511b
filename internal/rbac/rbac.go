package rbac

import (
	"errors"
	"time"
)

var (
	// ErrRoleNotFound is returned when a role doesn't exist in the
	// organization.
	ErrRoleNotFound = errors.New("rbac: role not found")
	// ErrRoleExists is returned when a role name is already taken
	// within the organization.
	ErrRoleExists = errors.New("rbac: role already exists")
	// ErrSystemRole is returned on attempts to modify or delete a
	// seeded system role.
	ErrSystemRole = errors.New("rbac: system role is read-only")
)

// Role is a named permission grant scoped to one organization. Roles
// with the same name in different organizations are unrelated.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Permissions    []string  `json:"permissions"`
	SystemRole     bool      `json:"systemRole"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Grants reports whether the role carries the named permission.
func (r *Role) Grants(permission string) bool {
	for _, p := range r.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
