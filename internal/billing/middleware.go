package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
	"github.com/mediplex/mediplex/internal/org"
)

// RequireFeature aborts with 402 unless the organization's subscription
// admits one more unit of the feature. Every billing rejection is the
// same status class so clients branch on one code.
func RequireFeature(e *Enforcer, featureKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := org.ID(c)
		if orgID == "" {
			apierr.Abort(c, apierr.TenantContext("organization context required"))
			return
		}
		err := e.Check(c.Request.Context(), orgID, featureKey)
		if err == nil {
			c.Next()
			return
		}

		apiErr, reason := classify(err, featureKey)
		if apiErr == nil {
			apierr.Abort(c, err)
			return
		}
		metrics.QuotaDenialsTotal.WithLabelValues(featureKey, reason).Inc()
		logging.L(c.Request.Context()).Warn("feature access denied",
			"organization_id", orgID,
			"feature", featureKey,
			"reason", reason,
		)
		apierr.Abort(c, apiErr)
	}
}

// classify maps billing errors onto the 402 taxonomy. Non-billing
// errors return nil and surface as 500s.
func classify(err error, featureKey string) (*apierr.Error, string) {
	var (
		stateErr   *StateError
		quotaErr   *QuotaError
		featureErr *FeatureError
	)
	switch {
	case errors.Is(err, ErrNoSubscription):
		return apierr.PaymentRequired("no active subscription"), "no_subscription"
	case errors.As(err, &stateErr):
		return apierr.PaymentRequired(
			fmt.Sprintf("subscription is %s", strings.ToLower(string(stateErr.Status))),
		), "subscription_" + strings.ToLower(string(stateErr.Status))
	case errors.As(err, &featureErr):
		if featureErr.Disabled {
			return apierr.PaymentRequired("feature disabled for current plan", featureKey), "feature_disabled"
		}
		return apierr.PaymentRequired("feature not included in current plan", featureKey), "feature_missing"
	case errors.As(err, &quotaErr):
		return apierr.PaymentRequired(
			fmt.Sprintf("%s limit reached (%d of %d used)", featureKey, quotaErr.Used, quotaErr.Limit),
			featureKey,
		), "quota_exceeded"
	default:
		return nil, ""
	}
}
