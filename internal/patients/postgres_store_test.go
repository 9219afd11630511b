package patients

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/scope"
	"github.com/mediplex/mediplex/internal/testutil"
)

// pgFixture seeds two organizations so cross-tenant visibility can be
// exercised against real SQL.
func pgFixture(t *testing.T) (*PostgresStore, *sql.DB, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)

	ctx := context.Background()
	orgs := org.NewPostgresStore(db)
	for _, o := range []*org.Organization{
		{ID: "org_pg1", Name: "Clinic One", Slug: "clinic-one", Status: org.StatusTrial},
		{ID: "org_pg2", Name: "Clinic Two", Slug: "clinic-two", Status: org.StatusTrial},
	} {
		require.NoError(t, orgs.Create(ctx, o))
	}
	return NewPostgresStore(db), db, cleanup
}

func TestPostgresStore_CRUDScopedToTenant(t *testing.T) {
	store, _, cleanup := pgFixture(t)
	defer cleanup()
	ctx := context.Background()

	p := &Patient{
		ID:             "pat_pg1",
		OrganizationID: "org_pg1",
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Email:          "ada@example.test",
	}
	require.NoError(t, store.Create(ctx, p))

	got, err := store.Get(ctx, "org_pg1", "pat_pg1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)

	_, err = store.Get(ctx, "org_pg2", "pat_pg1")
	assert.ErrorIs(t, err, ErrNotFound)

	p.FirstName = "Augusta"
	require.NoError(t, store.Update(ctx, p))
	got, err = store.Get(ctx, "org_pg1", "pat_pg1")
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.FirstName)

	// Updates and deletes through the wrong tenant touch zero rows.
	hijack := *p
	hijack.OrganizationID = "org_pg2"
	assert.ErrorIs(t, store.Update(ctx, &hijack), ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "org_pg2", "pat_pg1"), ErrNotFound)

	require.NoError(t, store.Delete(ctx, "org_pg1", "pat_pg1"))
	_, err = store.Get(ctx, "org_pg1", "pat_pg1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ListSearchAndPaging(t *testing.T) {
	store, _, cleanup := pgFixture(t)
	defer cleanup()
	ctx := context.Background()

	seed := []struct{ id, orgID, first, last string }{
		{"pat_a", "org_pg1", "Ada", "Lovelace"},
		{"pat_b", "org_pg1", "Grace", "Hopper"},
		{"pat_c", "org_pg1", "Margaret", "Hamilton"},
		{"pat_d", "org_pg2", "Alan", "Turing"},
	}
	for _, s := range seed {
		require.NoError(t, store.Create(ctx, &Patient{
			ID: s.id, OrganizationID: s.orgID, FirstName: s.first, LastName: s.last,
		}))
	}

	page, err := store.List(ctx, "org_pg1", scope.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	for _, p := range page.Data {
		assert.Equal(t, "org_pg1", p.OrganizationID)
	}

	page, err = store.List(ctx, "org_pg1", scope.SearchParams{Search: "ham"})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, "Margaret", page.Data[0].FirstName)

	// A LIKE metacharacter in the term is literal, not a wildcard.
	page, err = store.List(ctx, "org_pg1", scope.SearchParams{Search: "%"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)

	page, err = store.List(ctx, "org_pg1", scope.SearchParams{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.TotalPages)
}
