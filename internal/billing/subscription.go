package billing

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSubscription is returned when an organization has no
	// subscription row at all.
	ErrNoSubscription = errors.New("billing: no subscription")
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubTrial     SubscriptionStatus = "TRIAL"
	SubActive    SubscriptionStatus = "ACTIVE"
	SubExpired   SubscriptionStatus = "EXPIRED"
	SubPastDue   SubscriptionStatus = "PAST_DUE"
	SubCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription binds an organization to a plan. One per organization.
type Subscription struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organizationId"`
	PlanID         string             `json:"planId"`
	Status         SubscriptionStatus `json:"status"`
	TrialEndsAt    *time.Time         `json:"trialEndsAt,omitempty"`
	PeriodEndsAt   *time.Time         `json:"periodEndsAt,omitempty"`
	GatewayRef     string             `json:"-"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// Usable reports whether the subscription currently grants access: an
// active paid subscription, or a trial still inside its window.
func (s *Subscription) Usable(now time.Time) bool {
	switch s.Status {
	case SubActive:
		return true
	case SubTrial:
		return s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
	default:
		return false
	}
}

// TrialLapsed reports whether a trial subscription's window has passed.
func (s *Subscription) TrialLapsed(now time.Time) bool {
	return s.Status == SubTrial && s.TrialEndsAt != nil && !now.Before(*s.TrialEndsAt)
}

// UsageCounter tracks consumption of one feature by one organization.
type UsageCounter struct {
	OrganizationID string        `json:"organizationId"`
	FeatureKey     string        `json:"featureKey"`
	Used           int64         `json:"usedCount"`
	Reset          ResetInterval `json:"resetInterval"`
	LastResetAt    time.Time     `json:"lastResetAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// StateError is a 402-class rejection explaining why the subscription
// cannot serve the request.
type StateError struct {
	Status SubscriptionStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("billing: subscription is %s", e.Status)
}

// QuotaError is a 402-class rejection for a feature at its cap.
type QuotaError struct {
	FeatureKey string
	Used       int64
	Limit      int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("billing: %s quota exceeded (%d of %d used)", e.FeatureKey, e.Used, e.Limit)
}

// FeatureError is a 402-class rejection for a feature the plan does not
// include or has disabled.
type FeatureError struct {
	FeatureKey string
	Disabled   bool
}

func (e *FeatureError) Error() string {
	if e.Disabled {
		return fmt.Sprintf("billing: feature %s is disabled for this plan", e.FeatureKey)
	}
	return fmt.Sprintf("billing: feature %s is not part of this plan", e.FeatureKey)
}
