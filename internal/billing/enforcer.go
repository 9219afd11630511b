package billing

import (
	"context"
	"errors"
	"time"
)

// Enforcer answers "may this organization use one more of this
// feature?" by walking subscription state, plan membership, the enabled
// flag and the numeric cap, in that order. The first failure wins.
type Enforcer struct {
	store Store
	now   func() time.Time
}

// NewEnforcer creates an enforcer over the billing store.
func NewEnforcer(store Store) *Enforcer {
	return &Enforcer{store: store, now: time.Now}
}

// Check validates feature access for the organization. It returns nil
// when one more unit of the feature fits, or one of the 402-class
// errors: ErrNoSubscription, *StateError, *FeatureError, *QuotaError.
//
// The check and the later usage increment are two separate steps.
// Between them a concurrent request can pass the same check, so usage
// can overshoot a cap by at most the number of in-flight requests.
// That slack is accepted; the alternative is a lock or transaction
// spanning the whole handler.
func (e *Enforcer) Check(ctx context.Context, orgID, featureKey string) error {
	sub, err := e.store.GetSubscription(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrNoSubscription) {
			return ErrNoSubscription
		}
		return err
	}
	if !sub.Usable(e.now().UTC()) {
		status := sub.Status
		if sub.TrialLapsed(e.now().UTC()) {
			status = SubExpired
		}
		return &StateError{Status: status}
	}

	limit, err := e.store.GetLimit(ctx, sub.PlanID, featureKey)
	if err != nil {
		if errors.Is(err, ErrLimitNotFound) {
			return &FeatureError{FeatureKey: featureKey}
		}
		return err
	}
	if !limit.Enabled {
		return &FeatureError{FeatureKey: featureKey, Disabled: true}
	}
	if limit.LimitValue == Unlimited {
		return nil
	}

	counter, err := e.store.GetCounter(ctx, orgID, featureKey)
	if err != nil {
		return err
	}
	if counter.Used >= limit.LimitValue {
		return &QuotaError{FeatureKey: featureKey, Used: counter.Used, Limit: limit.LimitValue}
	}
	return nil
}
