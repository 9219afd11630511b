package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/org"
)

// Handler exposes read-only billing routes.
type Handler struct {
	store Store
	usage *Usage
}

// NewHandler creates the billing HTTP handler.
func NewHandler(store Store, usage *Usage) *Handler {
	return &Handler{store: store, usage: usage}
}

// ListPlans returns the plan catalog with limits.
// GET /v1/plans  (public)
func (h *Handler) ListPlans(c *gin.Context) {
	ctx := c.Request.Context()
	plans, err := h.store.ListPlans(ctx)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	type planView struct {
		*Plan
		Limits []*FeatureLimit `json:"limits"`
	}
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		limits, err := h.store.ListLimits(ctx, p.ID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		out = append(out, planView{Plan: p, Limits: limits})
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// GetSubscription returns the caller's subscription with usage.
// GET /v1/subscription
func (h *Handler) GetSubscription(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := org.ID(c)

	sub, err := h.store.GetSubscription(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrNoSubscription) {
			apierr.Respond(c, apierr.NotFound("subscription"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	plan, err := h.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	type usageView struct {
		FeatureKey string `json:"featureKey"`
		Used       int64  `json:"used"`
		Limit      int64  `json:"limit"`
		Enabled    bool   `json:"enabled"`
	}
	var usage []usageView
	limits, err := h.store.ListLimits(ctx, sub.PlanID)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	for _, l := range limits {
		counter, err := h.usage.Counter(ctx, orgID, l.FeatureKey)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		usage = append(usage, usageView{
			FeatureKey: l.FeatureKey,
			Used:       counter.Used,
			Limit:      l.LimitValue,
			Enabled:    l.Enabled,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"plan":         plan,
		"usage":        usage,
	})
}
