package stripewebhooks

import (
	"context"

	"membership-portal/internal/domain/plans"
	"membership-portal/internal/infra/stripe"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

// subscriptionDeleted ends the membership: the member drops to free and
// any scheduled change is dropped with it.
func (h *Handler) subscriptionDeleted(ctx context.Context, raw *stripeapi.Subscription) error {
	if raw.ID == "" {
		return errIgnore
	}
	sub := stripe.FromStripeSubscription(raw)

	user, err := h.subscriber(ctx, sub)
	if err != nil {
		return err
	}
	// An older subscription ending after a replacement must not demote.
	if user.SubscriptionId != nil && *user.SubscriptionId != "" && *user.SubscriptionId != sub.ID {
		return errIgnore
	}

	m := sub.Membership(nil)
	m.Status = "canceled"
	m.Tier = plans.TierFree
	m.ClearPending = true
	if err := h.users.ApplyMembership(ctx, user.ID, m); err != nil {
		return err
	}
	h.log.Info("membership ended", zap.Uint("user_id", user.ID), zap.String("subscription", sub.ID))
	return nil
}
