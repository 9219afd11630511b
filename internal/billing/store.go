package billing

import (
	"context"
	"time"
)

// Store persists plans, feature limits, subscriptions and usage
// counters. One implementation backs all four because the enforcement
// path reads across them on every request.
type Store interface {
	// SeedCatalog upserts the built-in plans and limit matrix.
	SeedCatalog(ctx context.Context, plans []*Plan, limits []*FeatureLimit) error

	// GetPlan returns a plan by ID, or ErrPlanNotFound.
	GetPlan(ctx context.Context, id string) (*Plan, error)

	// GetPlanByName returns a plan by name, or ErrPlanNotFound.
	GetPlanByName(ctx context.Context, name string) (*Plan, error)

	// ListPlans returns the plan catalog.
	ListPlans(ctx context.Context) ([]*Plan, error)

	// GetLimit returns one plan's cap on one feature, or ErrLimitNotFound.
	GetLimit(ctx context.Context, planID, featureKey string) (*FeatureLimit, error)

	// ListLimits returns every limit of a plan.
	ListLimits(ctx context.Context, planID string) ([]*FeatureLimit, error)

	// CreateSubscription inserts an organization's subscription.
	CreateSubscription(ctx context.Context, s *Subscription) error

	// GetSubscription returns an organization's subscription, or
	// ErrNoSubscription.
	GetSubscription(ctx context.Context, orgID string) (*Subscription, error)

	// UpdateSubscription persists plan, status, window and gateway
	// reference changes.
	UpdateSubscription(ctx context.Context, s *Subscription) error

	// ListLapsedTrials returns trial subscriptions whose window passed
	// before now, up to limit rows.
	ListLapsedTrials(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)

	// ExpireTrial marks the subscription EXPIRED and its organization
	// EXPIRED in one atomic step.
	ExpireTrial(ctx context.Context, subID string) error

	// InitCounter creates a zero usage counter if none exists.
	InitCounter(ctx context.Context, c *UsageCounter) error

	// GetCounter returns a usage counter, or a zero-valued counter when
	// the row doesn't exist yet.
	GetCounter(ctx context.Context, orgID, featureKey string) (*UsageCounter, error)

	// IncrementCounter atomically adds one to a usage counter, creating
	// the row if needed, and returns the new count.
	IncrementCounter(ctx context.Context, orgID, featureKey string) (int64, error)

	// ListCountersDueReset returns counters with a MONTHLY interval
	// whose last reset is before cutoff.
	ListCountersDueReset(ctx context.Context, cutoff time.Time, limit int) ([]*UsageCounter, error)

	// ResetCounter zeroes a counter and stamps the reset time.
	ResetCounter(ctx context.Context, orgID, featureKey string, at time.Time) error
}
