package org

import "context"

// Store persists organizations and their onboarding progress.
type Store interface {
	// Create inserts a new organization. Returns ErrSlugTaken if the
	// slug is already in use.
	Create(ctx context.Context, o *Organization) error

	// Get returns an organization by ID, or ErrNotFound.
	Get(ctx context.Context, id string) (*Organization, error)

	// GetBySlug returns an organization by slug, or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*Organization, error)

	// Update persists name, settings and status changes.
	Update(ctx context.Context, o *Organization) error

	// UpdateStatus transitions an organization's lifecycle state.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// SlugExists reports whether a slug is taken, without loading the row.
	SlugExists(ctx context.Context, slug string) (bool, error)

	// GetProgress returns onboarding progress, or ErrNotFound.
	GetProgress(ctx context.Context, orgID string) (*OnboardingProgress, error)

	// SaveProgress upserts onboarding progress.
	SaveProgress(ctx context.Context, p *OnboardingProgress) error
}
