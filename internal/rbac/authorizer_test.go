package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTestRoles(t *testing.T, store *MemoryStore, orgID string) {
	t.Helper()
	for _, r := range DefaultRoles(orgID) {
		require.NoError(t, store.Create(context.Background(), r))
	}
}

func TestEffectivePermissions_UnionAcrossRoles(t *testing.T) {
	store := NewMemoryStore()
	seedTestRoles(t, store, "org_1")
	a := NewAuthorizer(store)

	perms, err := a.EffectivePermissions(context.Background(), "org_1",
		[]string{RoleNurse, RoleReceptionist})
	require.NoError(t, err)

	// Union: nurse brings records:write, receptionist brings billing:read.
	assert.Contains(t, perms, RecordsWrite)
	assert.Contains(t, perms, BillingRead)
	assert.Contains(t, perms, PatientsCreate)
	// Neither role grants settings:manage.
	assert.NotContains(t, perms, SettingsManage)
}

func TestAuthorize_SubsetRequired(t *testing.T) {
	store := NewMemoryStore()
	seedTestRoles(t, store, "org_1")
	a := NewAuthorizer(store)
	ctx := context.Background()

	// All required permissions granted.
	err := a.Authorize(ctx, "org_1", []string{RoleDoctor},
		[]string{PatientsRead, RecordsWrite})
	assert.NoError(t, err)

	// Partial coverage is denial, and the error names what's missing.
	err = a.Authorize(ctx, "org_1", []string{RoleReceptionist},
		[]string{PatientsRead, RecordsWrite})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, []string{RecordsWrite}, denied.Missing)
}

func TestAuthorize_EmptyRequirementPasses(t *testing.T) {
	a := NewAuthorizer(NewMemoryStore())
	assert.NoError(t, a.Authorize(context.Background(), "org_1", nil, nil))
}

func TestAuthorize_NoRolesDenied(t *testing.T) {
	store := NewMemoryStore()
	seedTestRoles(t, store, "org_1")
	a := NewAuthorizer(store)

	err := a.Authorize(context.Background(), "org_1", nil, []string{PatientsRead})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAuthorize_UnknownRoleContributesNothing(t *testing.T) {
	store := NewMemoryStore()
	seedTestRoles(t, store, "org_1")
	a := NewAuthorizer(store)

	err := a.Authorize(context.Background(), "org_1",
		[]string{"ghost-role"}, []string{PatientsRead})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAuthorize_RolesAreTenantScoped(t *testing.T) {
	store := NewMemoryStore()
	seedTestRoles(t, store, "org_1")
	a := NewAuthorizer(store)

	// Same role name, different organization: no grants leak across.
	err := a.Authorize(context.Background(), "org_2",
		[]string{RoleAdmin}, []string{PatientsRead})
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestDefaultRoles_ExplicitGrants(t *testing.T) {
	roles := DefaultRoles("org_1")
	require.Len(t, roles, 4)

	byName := map[string]*Role{}
	for _, r := range roles {
		assert.Equal(t, "org_1", r.OrganizationID)
		assert.True(t, r.SystemRole)
		byName[r.Name] = r
	}

	admin := byName[RoleAdmin]
	require.NotNil(t, admin)
	assert.ElementsMatch(t, Catalog, admin.Permissions)

	doctor := byName[RoleDoctor]
	require.NotNil(t, doctor)
	assert.True(t, doctor.Grants(PrescriptionsWrite))
	assert.False(t, doctor.Grants(SettingsManage))
	assert.False(t, doctor.Grants(StaffManage))

	receptionist := byName[RoleReceptionist]
	require.NotNil(t, receptionist)
	assert.True(t, receptionist.Grants(BillingRead))
	assert.False(t, receptionist.Grants(RecordsRead))
}

func TestCatalog_ValidPermission(t *testing.T) {
	assert.True(t, ValidPermission(PatientsRead))
	assert.False(t, ValidPermission("patients"))
	assert.False(t, ValidPermission("patients:*"))

	bad := InvalidPermissions([]string{PatientsRead, "nope:nope"})
	assert.Equal(t, []string{"nope:nope"}, bad)
}

func TestMemoryStore_SystemRolesReadOnly(t *testing.T) {
	store := NewMemoryStore()
	seedTestRoles(t, store, "org_1")
	ctx := context.Background()

	admin, err := store.GetByName(ctx, "org_1", RoleAdmin)
	require.NoError(t, err)

	admin.Permissions = []string{PatientsRead}
	assert.ErrorIs(t, store.Update(ctx, admin), ErrSystemRole)
	assert.ErrorIs(t, store.Delete(ctx, "org_1", admin.ID), ErrSystemRole)
}

func TestMemoryStore_DuplicateNameRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r1 := &Role{ID: "role_a", OrganizationID: "org_1", Name: "auditor"}
	require.NoError(t, store.Create(ctx, r1))

	r2 := &Role{ID: "role_b", OrganizationID: "org_1", Name: "auditor"}
	assert.ErrorIs(t, store.Create(ctx, r2), ErrRoleExists)

	// Same name in another organization is fine.
	r3 := &Role{ID: "role_c", OrganizationID: "org_2", Name: "auditor"}
	assert.NoError(t, store.Create(ctx, r3))
}
