// Package billing enforces subscription plans and feature quotas per
// organization, and runs the subscription lifecycle sweep.
package billing

import "errors"

var (
	// ErrPlanNotFound is returned when a plan doesn't exist.
	ErrPlanNotFound = errors.New("billing: plan not found")
	// ErrLimitNotFound is returned when a plan has no limit row for a
	// feature key.
	ErrLimitNotFound = errors.New("billing: feature limit not found")
)

// Billing cycles.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
)

// Plan is a priced feature bundle. PriceCents avoids floating point in
// money paths.
type Plan struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	PriceCents int64        `json:"priceCents"`
	Cycle      BillingCycle `json:"billingCycle"`
	TrialPlan  bool         `json:"trialPlan"`
}

// Feature keys gate countable resources. A key with no limit row in a
// plan means the feature is not part of that plan at all.
const (
	FeaturePatients     = "MAX_PATIENTS"
	FeatureDoctors      = "MAX_DOCTORS"
	FeatureAppointments = "MAX_APPOINTMENTS"
	FeatureStaff        = "MAX_STAFF"
)

// FeatureKeys lists every countable feature, in seeding order.
var FeatureKeys = []string{FeaturePatients, FeatureDoctors, FeatureAppointments, FeatureStaff}

// ResetInterval controls when a usage counter returns to zero.
type ResetInterval string

const (
	ResetNever   ResetInterval = "NEVER"
	ResetMonthly ResetInterval = "MONTHLY"
)

// Unlimited is the sentinel limit value meaning no numeric cap.
const Unlimited = -1

// FeatureLimit is one plan's cap on one feature.
type FeatureLimit struct {
	PlanID     string        `json:"planId"`
	FeatureKey string        `json:"featureKey"`
	LimitValue int64         `json:"limitValue"`
	Enabled    bool          `json:"enabled"`
	Reset      ResetInterval `json:"resetInterval"`
}

// Allows reports whether usedCount more of the feature fits under the
// limit. Disabled features never allow; Unlimited always does.
func (l *FeatureLimit) Allows(used int64) bool {
	if !l.Enabled {
		return false
	}
	if l.LimitValue == Unlimited {
		return true
	}
	return used < l.LimitValue
}

// Built-in plan names.
const (
	PlanTrial      = "trial"
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// DefaultPlans is the built-in plan catalog seeded at startup.
func DefaultPlans() []*Plan {
	return []*Plan{
		{ID: "plan_trial", Name: PlanTrial, PriceCents: 0, Cycle: CycleMonthly, TrialPlan: true},
		{ID: "plan_basic", Name: PlanBasic, PriceCents: 4900, Cycle: CycleMonthly},
		{ID: "plan_pro", Name: PlanPro, PriceCents: 14900, Cycle: CycleMonthly},
		{ID: "plan_enterprise", Name: PlanEnterprise, PriceCents: 49900, Cycle: CycleYearly},
	}
}

// DefaultLimits is the built-in limit matrix, keyed by plan ID.
func DefaultLimits() []*FeatureLimit {
	mk := func(planID string, patients, doctors, appointments, staff int64) []*FeatureLimit {
		return []*FeatureLimit{
			{PlanID: planID, FeatureKey: FeaturePatients, LimitValue: patients, Enabled: true, Reset: ResetNever},
			{PlanID: planID, FeatureKey: FeatureDoctors, LimitValue: doctors, Enabled: true, Reset: ResetNever},
			{PlanID: planID, FeatureKey: FeatureAppointments, LimitValue: appointments, Enabled: true, Reset: ResetMonthly},
			{PlanID: planID, FeatureKey: FeatureStaff, LimitValue: staff, Enabled: true, Reset: ResetNever},
		}
	}
	var out []*FeatureLimit
	out = append(out, mk("plan_trial", 50, 2, 100, 5)...)
	out = append(out, mk("plan_basic", 500, 10, 2000, 25)...)
	out = append(out, mk("plan_pro", 5000, 50, 20000, 200)...)
	out = append(out, mk("plan_enterprise", Unlimited, Unlimited, Unlimited, Unlimited)...)
	return out
}
