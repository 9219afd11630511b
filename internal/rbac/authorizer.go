package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotAuthorized is returned when the permission subset test fails.
var ErrNotAuthorized = errors.New("rbac: not authorized")

// DeniedError carries the permissions the caller lacked.
type DeniedError struct {
	Missing []string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rbac: missing permissions %v", e.Missing)
}

func (e *DeniedError) Unwrap() error { return ErrNotAuthorized }

// Authorizer answers permission questions by unioning role grants.
type Authorizer struct {
	store Store
}

// NewAuthorizer creates an authorizer over the given role store.
func NewAuthorizer(store Store) *Authorizer {
	return &Authorizer{store: store}
}

// EffectivePermissions returns the union of grants across the named
// roles within the organization. Role names that don't exist in the
// organization contribute nothing.
func (a *Authorizer) EffectivePermissions(ctx context.Context, orgID string, roleNames []string) (map[string]struct{}, error) {
	roles, err := a.store.ListByNames(ctx, orgID, roleNames)
	if err != nil {
		return nil, err
	}
	effective := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range r.Permissions {
			effective[p] = struct{}{}
		}
	}
	return effective, nil
}

// Authorize passes only when EVERY required permission is granted.
// Partial coverage is denial; the returned DeniedError lists what was
// missing. An empty requirement list always passes.
func (a *Authorizer) Authorize(ctx context.Context, orgID string, roleNames, required []string) error {
	if len(required) == 0 {
		return nil
	}
	if orgID == "" || len(roleNames) == 0 {
		return &DeniedError{Missing: sorted(required)}
	}
	effective, err := a.EffectivePermissions(ctx, orgID, roleNames)
	if err != nil {
		return err
	}
	var missing []string
	for _, p := range required {
		if _, ok := effective[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &DeniedError{Missing: sorted(missing)}
	}
	return nil
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
