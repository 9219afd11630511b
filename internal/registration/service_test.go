package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediplex/mediplex/internal/billing"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/rbac"
)

// captureMailer records sent verification mails for assertions.
type captureMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	ready chan struct{}
}

type sentMail struct {
	email, name, token string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{ready: make(chan struct{}, 8)}
}

func (m *captureMailer) SendVerification(_ context.Context, email, name, token string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{email: email, name: name, token: token})
	m.mu.Unlock()
	m.ready <- struct{}{}
	return nil
}

func (m *captureMailer) wait(t *testing.T) sentMail {
	t.Helper()
	select {
	case <-m.ready:
	case <-time.After(5 * time.Second):
		t.Fatal("verification email never sent")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	orgs    *org.MemoryStore
	users   *identity.MemoryStore
	roles   *rbac.MemoryStore
	billing *billing.MemoryStore
	mailer  *captureMailer
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		orgs:    org.NewMemoryStore(),
		users:   identity.NewMemoryStore(),
		roles:   rbac.NewMemoryStore(),
		billing: billing.NewMemoryStore(),
		mailer:  newCaptureMailer(),
	}
	require.NoError(t, f.billing.SeedCatalog(context.Background(), billing.DefaultPlans(), billing.DefaultLimits()))
	b := NewMemoryBootstrapper(f.orgs, f.users, f.roles, f.billing)
	f.svc = NewService(b, f.billing, f.mailer, 14)
	return f
}

func validInput() Input {
	return Input{
		OrganizationName: "Sunrise Clinic",
		Slug:             "sunrise-clinic",
		Email:            "admin@sunrise.test",
		Password:         "hunter22pass",
		FirstName:        "Ada",
		LastName:         "Lovelace",
	}
}

func TestRegister_CreatesFullTenantGraph(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Register(ctx, validInput())
	require.NoError(t, err)

	o, err := f.orgs.GetBySlug(ctx, "sunrise-clinic")
	require.NoError(t, err)
	assert.Equal(t, org.StatusTrial, o.Status)
	assert.Equal(t, res.Organization.ID, o.ID)

	admin, err := f.users.GetByEmail(ctx, "admin@sunrise.test")
	require.NoError(t, err)
	assert.Equal(t, o.ID, admin.OrganizationID)
	assert.Equal(t, "EMP-0001", admin.DisplayID)
	assert.Equal(t, []string{rbac.RoleAdmin}, admin.Roles)
	assert.Equal(t, identity.UserPending, admin.Status)
	assert.False(t, admin.EmailVerified)

	roles, err := f.roles.List(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, roles, 4)

	sub, err := f.billing.GetSubscription(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubTrial, sub.Status)
	require.NotNil(t, sub.TrialEndsAt)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 14), *sub.TrialEndsAt, 5*time.Second)

	for _, key := range billing.FeatureKeys {
		c, err := f.billing.GetCounter(ctx, o.ID, key)
		require.NoError(t, err)
		assert.Equal(t, int64(0), c.Used, key)
	}

	progress, err := f.orgs.GetProgress(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.Step)
	assert.Equal(t, org.OnboardingSteps, progress.TotalSteps)
}

func TestRegister_SendsVerificationEmailAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Register(ctx, validInput())
	require.NoError(t, err)

	mail := f.mailer.wait(t)
	assert.Equal(t, "admin@sunrise.test", mail.email)
	assert.Equal(t, "Ada Lovelace", mail.name)

	// The mailed raw token hashes to the stored record and activates
	// the admin account.
	userID, err := f.users.ConsumeVerificationToken(ctx, identity.HashToken(mail.token))
	require.NoError(t, err)
	assert.Equal(t, res.Admin.ID, userID)
}

func TestRegister_SlugConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Email = "other@sunrise.test"
	_, err = f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, org.ErrSlugTaken)

	// The losing registration left nothing behind.
	_, err = f.users.GetByEmail(ctx, "other@sunrise.test")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestRegister_EmailConflictRollsBackOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Slug = "second-clinic"
	_, err = f.svc.Register(ctx, in)
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	// The organization written before the user conflict is gone.
	exists, err := f.orgs.SlugExists(ctx, "second-clinic")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegister_ConcurrentSameSlugOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			in := validInput()
			in.Email = string(rune('a'+i)) + "@sunrise.test"
			_, err := f.svc.Register(ctx, in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, org.ErrSlugTaken)
		}
	}
	assert.Equal(t, 1, won)
}

func TestRegister_MissingTrialPlan(t *testing.T) {
	f := &fixture{
		orgs:    org.NewMemoryStore(),
		users:   identity.NewMemoryStore(),
		roles:   rbac.NewMemoryStore(),
		billing: billing.NewMemoryStore(),
		mailer:  newCaptureMailer(),
	}
	b := NewMemoryBootstrapper(f.orgs, f.users, f.roles, f.billing)
	f.svc = NewService(b, f.billing, f.mailer, 14)

	_, err := f.svc.Register(context.Background(), validInput())
	assert.True(t, errors.Is(err, ErrTrialPlanMissing))
}
