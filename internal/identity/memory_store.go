package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // email -> id
	tokens  map[string]*VerificationToken
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		tokens:  make(map[string]*VerificationToken),
	}
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	s.byID[u.ID] = cloneUser(u)
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *MemoryStore) CountByOrganization(_ context.Context, orgID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.byID {
		if u.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.EmailVerified = true
	u.Status = UserActive
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SaveVerificationToken(_ context.Context, t *VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tokens[t.TokenHash] = &cp
	return nil
}

func (s *MemoryStore) ConsumeVerificationToken(_ context.Context, hash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.tokens, hash)
	if t.Expired(time.Now().UTC()) {
		return "", ErrTokenExpired
	}
	return t.UserID, nil
}

// Delete removes a user. Used by the in-memory registration path to
// undo a partial bootstrap.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byEmail, u.Email)
	delete(s.byID, id)
	return nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp
}
