package rbac

import "context"

// Store persists roles per organization.
type Store interface {
	// Create inserts a role. Returns ErrRoleExists when the name is
	// taken within the organization.
	Create(ctx context.Context, r *Role) error

	// Get returns a role by id within the organization, or ErrRoleNotFound.
	Get(ctx context.Context, orgID, id string) (*Role, error)

	// GetByName returns a role by name within the organization.
	GetByName(ctx context.Context, orgID, name string) (*Role, error)

	// ListByNames returns the roles matching the given names within the
	// organization. Unknown names are skipped, not errors.
	ListByNames(ctx context.Context, orgID string, names []string) ([]*Role, error)

	// List returns every role in the organization.
	List(ctx context.Context, orgID string) ([]*Role, error)

	// Update persists permission and description changes.
	Update(ctx context.Context, r *Role) error

	// Delete removes a custom role. System roles return ErrSystemRole.
	Delete(ctx context.Context, orgID, id string) error
}
