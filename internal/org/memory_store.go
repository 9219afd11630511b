package org

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Organization
	bySlug   map[string]string // slug -> id
	progress map[string]*OnboardingProgress
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Organization),
		bySlug:   make(map[string]string),
		progress: make(map[string]*OnboardingProgress),
	}
}

func (s *MemoryStore) Create(_ context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySlug[o.Slug]; ok {
		return ErrSlugTaken
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	cp := cloneOrg(o)
	s.byID[o.ID] = cp
	s.bySlug[o.Slug] = o.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrg(o), nil
}

func (s *MemoryStore) GetBySlug(_ context.Context, slug string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrg(s.byID[id]), nil
}

func (s *MemoryStore) Update(_ context.Context, o *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[o.ID]
	if !ok {
		return ErrNotFound
	}
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	s.byID[o.ID] = cloneOrg(o)
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SlugExists(_ context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.bySlug[slug]
	return ok, nil
}

func (s *MemoryStore) GetProgress(_ context.Context, orgID string) (*OnboardingProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SaveProgress(_ context.Context, p *OnboardingProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	cp := *p
	s.progress[p.OrganizationID] = &cp
	return nil
}

// Delete removes an organization and its progress. Used by the
// in-memory registration path to undo a partial bootstrap.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.bySlug, o.Slug)
	delete(s.byID, id)
	delete(s.progress, id)
	return nil
}

func cloneOrg(o *Organization) *Organization {
	cp := *o
	if o.Settings != nil {
		cp.Settings = make(Settings, len(o.Settings))
		for k, v := range o.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}
