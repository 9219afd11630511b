// Package payments receives payment gateway webhooks and drives
// subscription transitions from them. The gateway is the source of
// truth for money; this package only reacts to its signed events.
package payments

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/mediplex/mediplex/internal/apierr"
	"github.com/mediplex/mediplex/internal/billing"
	"github.com/mediplex/mediplex/internal/logging"
)

// maxWebhookBody bounds the webhook payload size.
const maxWebhookBody = 64 << 10

// Handler verifies and dispatches gateway webhook events.
type Handler struct {
	subscriptions *billing.Service
	signingSecret string
}

// NewHandler creates the webhook handler. With an empty signing secret
// the endpoint rejects everything; it is only mounted when configured.
func NewHandler(subscriptions *billing.Service, signingSecret string) *Handler {
	return &Handler{subscriptions: subscriptions, signingSecret: signingSecret}
}

// Webhook handles gateway events.
// POST /v1/payments/webhook  (public, signature-verified)
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		apierr.Respond(c, apierr.BadRequest("unreadable payload"))
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.signingSecret)
	if err != nil {
		logging.L(c.Request.Context()).Warn("webhook signature verification failed", "error", err)
		apierr.Respond(c, apierr.BadRequest("invalid signature"))
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		err = h.handleCheckoutCompleted(c, event)
	case "customer.subscription.deleted":
		err = h.handleSubscriptionDeleted(c, event)
	default:
		logging.L(ctx).Debug("ignoring webhook event", "type", event.Type)
	}
	if err != nil {
		logging.L(ctx).Error("webhook handling failed", "type", event.Type, "error", err)
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// handleCheckoutCompleted activates the paid plan named in the checkout
// session's metadata.
func (h *Handler) handleCheckoutCompleted(c *gin.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return apierr.BadRequest("malformed checkout session")
	}
	orgID := session.Metadata["organization_id"]
	planID := session.Metadata["plan_id"]
	if orgID == "" || planID == "" {
		return apierr.BadRequest("checkout session missing organization or plan metadata")
	}

	gatewayRef := ""
	if session.Subscription != nil {
		gatewayRef = session.Subscription.ID
	}
	return h.subscriptions.Activate(c.Request.Context(), orgID, planID, gatewayRef)
}

// handleSubscriptionDeleted cancels the organization's subscription
// when the gateway reports it gone.
func (h *Handler) handleSubscriptionDeleted(c *gin.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return apierr.BadRequest("malformed subscription")
	}
	orgID := sub.Metadata["organization_id"]
	if orgID == "" {
		return apierr.BadRequest("subscription missing organization metadata")
	}
	return h.subscriptions.Cancel(c.Request.Context(), orgID)
}
