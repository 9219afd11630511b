package patients

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediplex/mediplex/internal/scope"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Patient
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Patient)}
}

func (s *MemoryStore) Create(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orgID, id string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok || p.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, orgID string, params scope.SearchParams) (scope.Page[*Patient], error) {
	params = params.Normalize()

	s.mu.RLock()
	var matched []*Patient
	term := strings.ToLower(params.Search)
	for _, p := range s.byID {
		if p.OrganizationID != orgID {
			continue
		}
		if term != "" && !matchesTerm(p, term) {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less bool
		switch params.SortBy {
		case "firstName":
			less = a.FirstName < b.FirstName ||
				(a.FirstName == b.FirstName && a.LastName < b.LastName)
		case "lastName":
			less = a.LastName < b.LastName ||
				(a.LastName == b.LastName && a.FirstName < b.FirstName)
		case "createdAt":
			less = a.CreatedAt.Before(b.CreatedAt)
		default:
			// Same default as the SQL path: newest rows first.
			return a.CreatedAt.After(b.CreatedAt)
		}
		if params.SortDir == "DESC" {
			return !less
		}
		return less
	})

	total := int64(len(matched))
	start := (params.Page - 1) * params.Limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return scope.NewPage(matched[start:end], total, params), nil
}

func matchesTerm(p *Patient, term string) bool {
	return strings.Contains(strings.ToLower(p.FirstName), term) ||
		strings.Contains(strings.ToLower(p.LastName), term) ||
		strings.Contains(strings.ToLower(p.Email), term)
}

func (s *MemoryStore) Update(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[p.ID]
	if !ok || existing.OrganizationID != p.OrganizationID {
		return ErrNotFound
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, orgID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.OrganizationID != orgID {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
