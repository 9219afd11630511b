package billing

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/metrics"
	"github.com/mediplex/mediplex/internal/org"
)

// Usage records feature consumption after successful writes.
type Usage struct {
	store Store
}

// NewUsage creates the usage recorder.
func NewUsage(store Store) *Usage {
	return &Usage{store: store}
}

// Increment adds one to the organization's counter for the feature.
func (u *Usage) Increment(ctx context.Context, orgID, featureKey string) error {
	used, err := u.store.IncrementCounter(ctx, orgID, featureKey)
	if err != nil {
		return err
	}
	metrics.UsageIncrementsTotal.WithLabelValues(featureKey).Inc()
	logging.L(ctx).Debug("usage incremented",
		"organization_id", orgID, "feature", featureKey, "used", used)
	return nil
}

// Counter returns the organization's current count for the feature.
func (u *Usage) Counter(ctx context.Context, orgID, featureKey string) (*UsageCounter, error) {
	return u.store.GetCounter(ctx, orgID, featureKey)
}

// CountOnSuccess increments the feature counter after the handler
// completes with a 2xx status. The response is already written by then,
// so a failed increment cannot change it; the error is logged and
// attached to the context for the request log and any error collectors.
func CountOnSuccess(u *Usage, featureKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.IsAborted() || c.Writer.Status() >= 300 {
			return
		}
		ctx := c.Request.Context()
		if err := u.Increment(ctx, org.ID(c), featureKey); err != nil {
			logging.L(ctx).Error("usage increment failed",
				"organization_id", org.ID(c), "feature", featureKey, "error", err)
			_ = c.Error(err)
		}
	}
}
