package rbac

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	roles map[string]*Role  // id -> role
	names map[string]string // orgID + "\x00" + name -> id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		roles: make(map[string]*Role),
		names: make(map[string]string),
	}
}

func nameKey(orgID, name string) string { return orgID + "\x00" + name }

func (s *MemoryStore) Create(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nameKey(r.OrganizationID, r.Name)
	if _, ok := s.names[key]; ok {
		return ErrRoleExists
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	s.roles[r.ID] = cloneRole(r)
	s.names[key] = r.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orgID, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok || r.OrganizationID != orgID {
		return nil, ErrRoleNotFound
	}
	return cloneRole(r), nil
}

func (s *MemoryStore) GetByName(_ context.Context, orgID, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.names[nameKey(orgID, name)]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return cloneRole(s.roles[id]), nil
}

func (s *MemoryStore) ListByNames(_ context.Context, orgID string, names []string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Role, 0, len(names))
	for _, name := range names {
		if id, ok := s.names[nameKey(orgID, name)]; ok {
			out = append(out, cloneRole(s.roles[id]))
		}
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context, orgID string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Role
	for _, r := range s.roles {
		if r.OrganizationID == orgID {
			out = append(out, cloneRole(r))
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.roles[r.ID]
	if !ok || existing.OrganizationID != r.OrganizationID {
		return ErrRoleNotFound
	}
	if existing.SystemRole {
		return ErrSystemRole
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.roles[r.ID] = cloneRole(r)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[id]
	if !ok || r.OrganizationID != orgID {
		return ErrRoleNotFound
	}
	if r.SystemRole {
		return ErrSystemRole
	}
	delete(s.names, nameKey(orgID, r.Name))
	delete(s.roles, id)
	return nil
}

// DeleteByOrganization removes every role in an organization. Used by
// the in-memory registration path to undo a partial bootstrap.
func (s *MemoryStore) DeleteByOrganization(_ context.Context, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.roles {
		if r.OrganizationID == orgID {
			delete(s.names, nameKey(orgID, r.Name))
			delete(s.roles, id)
		}
	}
}

func cloneRole(r *Role) *Role {
	cp := *r
	cp.Permissions = append([]string(nil), r.Permissions...)
	return &cp
}
