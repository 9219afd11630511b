package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/mediplex/mediplex/internal/idgen"
	"github.com/mediplex/mediplex/internal/logging"
	"github.com/mediplex/mediplex/internal/org"
)

// Service drives subscription transitions from payment events and
// admin actions.
type Service struct {
	store Store
	orgs  org.Store
}

// NewService creates the subscription lifecycle service.
func NewService(store Store, orgs org.Store) *Service {
	return &Service{store: store, orgs: orgs}
}

// NewTrialSubscription builds an unsaved trial subscription for a fresh
// organization.
func NewTrialSubscription(orgID, planID string, trialDays int) *Subscription {
	ends := time.Now().UTC().AddDate(0, 0, trialDays)
	return &Subscription{
		ID:             idgen.WithPrefix("sub_"),
		OrganizationID: orgID,
		PlanID:         planID,
		Status:         SubTrial,
		TrialEndsAt:    &ends,
	}
}

// Activate moves an organization onto a paid plan after a confirmed
// payment. The trial window is cleared and the organization goes
// ACTIVE regardless of its previous state.
func (s *Service) Activate(ctx context.Context, orgID, planID, gatewayRef string) error {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return err
	}
	sub, err := s.store.GetSubscription(ctx, orgID)
	if err != nil {
		return err
	}

	periodEnd := time.Now().UTC().AddDate(0, 1, 0)
	sub.PlanID = planID
	sub.Status = SubActive
	sub.TrialEndsAt = nil
	sub.PeriodEndsAt = &periodEnd
	sub.GatewayRef = gatewayRef
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if err := s.orgs.UpdateStatus(ctx, orgID, org.StatusActive); err != nil {
		return fmt.Errorf("activate organization: %w", err)
	}

	logging.L(ctx).Info("subscription activated",
		"organization_id", orgID, "plan_id", planID)
	return nil
}

// Cancel marks the subscription and its organization CANCELLED, e.g.
// after a gateway cancellation event. Data is retained; access stops.
func (s *Service) Cancel(ctx context.Context, orgID string) error {
	sub, err := s.store.GetSubscription(ctx, orgID)
	if err != nil {
		return err
	}
	sub.Status = SubCancelled
	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	if err := s.orgs.UpdateStatus(ctx, orgID, org.StatusCancelled); err != nil {
		return fmt.Errorf("cancel organization: %w", err)
	}

	logging.L(ctx).Info("subscription cancelled", "organization_id", orgID)
	return nil
}

// FindByGatewayRef resolves the organization owning a gateway
// subscription reference. Used by webhook handlers.
func (s *Service) FindByGatewayRef(ctx context.Context, orgID string) (*Subscription, error) {
	return s.store.GetSubscription(ctx, orgID)
}
