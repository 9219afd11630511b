package org

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrg(id, slug string) *Organization {
	return &Organization{ID: id, Name: "Clinic " + id, Slug: slug, Status: StatusTrial}
}

func TestMemoryStore_SlugUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newOrg("org_1", "sunrise-clinic")))

	err := store.Create(ctx, newOrg("org_2", "sunrise-clinic"))
	assert.ErrorIs(t, err, ErrSlugTaken)

	exists, err := store.SlugExists(ctx, "sunrise-clinic")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.SlugExists(ctx, "other-clinic")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_GetBySlug(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newOrg("org_1", "sunrise-clinic")))

	o, err := store.GetBySlug(ctx, "sunrise-clinic")
	require.NoError(t, err)
	assert.Equal(t, "org_1", o.ID)

	_, err = store.GetBySlug(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newOrg("org_1", "sunrise-clinic")))

	require.NoError(t, store.UpdateStatus(ctx, "org_1", StatusExpired))
	o, err := store.Get(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, o.Status)
	assert.False(t, o.Active())

	assert.ErrorIs(t, store.UpdateStatus(ctx, "org_missing", StatusActive), ErrNotFound)
}

func TestMemoryStore_DeleteFreesSlug(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newOrg("org_1", "sunrise-clinic")))
	require.NoError(t, store.Delete(ctx, "org_1"))

	exists, err := store.SlugExists(ctx, "sunrise-clinic")
	require.NoError(t, err)
	assert.False(t, exists)

	// Same slug can be registered again.
	assert.NoError(t, store.Create(ctx, newOrg("org_2", "sunrise-clinic")))
}

func TestMemoryStore_OnboardingProgress(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newOrg("org_1", "sunrise-clinic")))

	require.NoError(t, store.SaveProgress(ctx, &OnboardingProgress{
		OrganizationID: "org_1",
		Step:           2,
		TotalSteps:     OnboardingSteps,
	}))

	p, err := store.GetProgress(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Step)
	assert.Equal(t, OnboardingSteps, p.TotalSteps)
	assert.False(t, p.Completed)
}

func TestMemoryStore_ClonesOnRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Create(ctx, newOrg("org_1", "sunrise-clinic")))

	o, err := store.Get(ctx, "org_1")
	require.NoError(t, err)
	o.Name = "mutated"

	again, err := store.Get(ctx, "org_1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Name)
}
