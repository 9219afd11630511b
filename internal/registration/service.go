package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mediplex/mediplex/internal/billing"
	"github.com/mediplex/mediplex/internal/identity"
	"github.com/mediplex/mediplex/internal/idgen"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
	"github.com/mediplex/mediplex/internal/org"
	"github.com/mediplex/mediplex/internal/rbac"
	"github.com/mediplex/mediplex/internal/retry"
)

// ErrTrialPlanMissing is returned when the trial plan isn't seeded.
// Checked before any row is written so a misconfigured catalog fails
// registration cleanly.
var ErrTrialPlanMissing = errors.New("registration: trial plan not configured")

// Input is a registration request after validation.
type Input struct {
	OrganizationName string
	Slug             string
	Email            string
	Password         string
	FirstName        string
	LastName         string
}

// Result is what a successful registration produced.
type Result struct {
	Organization *org.Organization
	Admin        *identity.User
}

// Service assembles and persists new tenants.
type Service struct {
	bootstrapper Bootstrapper
	billing      billing.Store
	mailer       Mailer
	trialDays    int
}

// NewService creates the registration service.
func NewService(b Bootstrapper, billingStore billing.Store, mailer Mailer, trialDays int) *Service {
	return &Service{
		bootstrapper: b,
		billing:      billingStore,
		mailer:       mailer,
		trialDays:    trialDays,
	}
}

// Register creates a complete tenant: organization, admin user with the
// admin role, seeded default roles, a trial subscription, zeroed usage
// counters, onboarding progress and a verification token, all in one
// atomic step. The verification email goes out only after the commit.
func (s *Service) Register(ctx context.Context, in Input) (*Result, error) {
	trialPlan, err := s.billing.GetPlanByName(ctx, billing.PlanTrial)
	if err != nil {
		if errors.Is(err, billing.ErrPlanNotFound) {
			return nil, ErrTrialPlanMissing
		}
		return nil, err
	}
	limits, err := s.billing.ListLimits(ctx, trialPlan.ID)
	if err != nil {
		return nil, err
	}

	hash, err := identity.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	o := &org.Organization{
		ID:     idgen.WithPrefix("org_"),
		Name:   in.OrganizationName,
		Slug:   in.Slug,
		Status: org.StatusTrial,
	}
	admin := &identity.User{
		ID:             idgen.WithPrefix("usr_"),
		OrganizationID: o.ID,
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		DisplayID:      "EMP-0001",
		Roles:          []string{rbac.RoleAdmin},
		Status:         identity.UserPending,
	}
	rawToken, verification := identity.NewVerificationToken(admin.ID, identity.VerificationTTL)

	counters := make([]*billing.UsageCounter, 0, len(limits))
	for _, l := range limits {
		counters = append(counters, &billing.UsageCounter{
			OrganizationID: o.ID,
			FeatureKey:     l.FeatureKey,
			Reset:          l.Reset,
		})
	}

	b := &Bootstrap{
		Organization: o,
		Admin:        admin,
		Roles:        rbac.DefaultRoles(o.ID),
		Subscription: billing.NewTrialSubscription(o.ID, trialPlan.ID, s.trialDays),
		Counters:     counters,
		Onboarding: &org.OnboardingProgress{
			OrganizationID: o.ID,
			Step:           0,
			TotalSteps:     org.OnboardingSteps,
		},
		Verification: verification,
	}

	if err := s.bootstrapper.Bootstrap(ctx, b); err != nil {
		metrics.RegistrationsTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}
	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	logging.L(ctx).Info("organization registered",
		"organization_id", o.ID,
		"slug", o.Slug,
		"admin_user_id", admin.ID,
	)

	s.sendVerification(admin, rawToken)
	return &Result{Organization: o, Admin: admin}, nil
}

// sendVerification dispatches the verification email asynchronously
// with retries. The tenant already exists; delivery failure is an
// operational problem, not a registration failure.
func (s *Service) sendVerification(admin *identity.User, token string) {
	email, name := admin.Email, admin.FullName()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := retry.Do(ctx, 5, 2*time.Second, func() error {
			return s.mailer.SendVerification(ctx, email, name, token)
		})
		if err != nil {
			logging.L(ctx).Error("verification email failed after retries",
				"email", email, "error", err)
		}
	}()
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, org.ErrSlugTaken):
		return "slug_conflict"
	case errors.Is(err, identity.ErrEmailTaken):
		return "email_conflict"
	default:
		return "error"
	}
}
