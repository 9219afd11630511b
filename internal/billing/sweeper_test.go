package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediplex/mediplex/internal/org"
)

func TestExpireLapsedTrials_FlipsSubscriptionAndOrganization(t *testing.T) {
	ctx := context.Background()
	orgs := org.NewMemoryStore()
	store := seededStore(t)
	store.OnExpireOrganization(func(orgID string) {
		_ = orgs.UpdateStatus(ctx, orgID, org.StatusExpired)
	})

	require.NoError(t, orgs.Create(ctx, &org.Organization{
		ID: "org_1", Name: "Lapsed Clinic", Slug: "lapsed-clinic", Status: org.StatusTrial,
	}))
	trialSub(t, store, "org_1", -time.Hour)

	sw := NewSweeper(store, time.Hour)
	expired := sw.ExpireLapsedTrials(ctx)
	assert.Equal(t, 1, expired)

	sub, err := store.GetSubscription(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, SubExpired, sub.Status)

	o, err := orgs.Get(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, org.StatusExpired, o.Status)
}

func TestExpireLapsedTrials_SkipsUnexpiredAndNonTrial(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)

	trialSub(t, store, "org_ok", 24*time.Hour)
	sub := trialSub(t, store, "org_active", -time.Hour)
	sub.Status = SubActive
	sub.TrialEndsAt = nil
	require.NoError(t, store.UpdateSubscription(ctx, sub))

	sw := NewSweeper(store, time.Hour)
	assert.Equal(t, 0, sw.ExpireLapsedTrials(ctx))
}

func TestExpireLapsedTrials_OneFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	trialSub(t, store, "org_1", -time.Hour)
	trialSub(t, store, "org_2", -time.Hour)

	sw := NewSweeper(&flakyStore{Store: store, failSub: "sub_org_1"}, time.Hour)
	expired := sw.ExpireLapsedTrials(ctx)
	assert.Equal(t, 1, expired)

	sub, err := store.GetSubscription(ctx, "org_2")
	require.NoError(t, err)
	assert.Equal(t, SubExpired, sub.Status)
}

func TestResetDueCounters_ZeroesStaleMonthlyCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale := time.Now().UTC().AddDate(0, -2, 0)
	require.NoError(t, store.InitCounter(ctx, &UsageCounter{
		OrganizationID: "org_1",
		FeatureKey:     FeatureAppointments,
		Used:           40,
		Reset:          ResetMonthly,
		LastResetAt:    stale,
	}))
	require.NoError(t, store.InitCounter(ctx, &UsageCounter{
		OrganizationID: "org_1",
		FeatureKey:     FeaturePatients,
		Used:           12,
		Reset:          ResetNever,
		LastResetAt:    stale,
	}))

	sw := NewSweeper(store, time.Hour)
	assert.Equal(t, 1, sw.ResetDueCounters(ctx))

	c, err := store.GetCounter(ctx, "org_1", FeatureAppointments)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Used)
	assert.WithinDuration(t, time.Now().UTC(), c.LastResetAt, 5*time.Second)

	// Counters without a monthly interval keep their value.
	c, err = store.GetCounter(ctx, "org_1", FeaturePatients)
	require.NoError(t, err)
	assert.Equal(t, int64(12), c.Used)
}

func TestResetDueCounters_RecentCountersUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.InitCounter(ctx, &UsageCounter{
		OrganizationID: "org_1",
		FeatureKey:     FeatureAppointments,
		Used:           5,
		Reset:          ResetMonthly,
		LastResetAt:    time.Now().UTC().AddDate(0, 0, -10),
	}))

	sw := NewSweeper(store, time.Hour)
	assert.Equal(t, 0, sw.ResetDueCounters(ctx))
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	sw := NewSweeper(NewMemoryStore(), time.Hour)
	sw.Start(context.Background())
	sw.Start(context.Background())
	sw.Stop()
	sw.Stop()
}

// flakyStore fails ExpireTrial for one subscription id.
type flakyStore struct {
	Store
	failSub string
}

func (f *flakyStore) ExpireTrial(ctx context.Context, subID string) error {
	if subID == f.failSub {
		return assert.AnError
	}
	return f.Store.ExpireTrial(ctx, subID)
}
