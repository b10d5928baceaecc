package stripewebhooks

import (
	"context"

	"membership-portal/internal/infra/stripe"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

func stripeUserID(md map[string]string, ref string) uint {
	return stripe.UserIDFromMetadata(md, ref)
}

// subscriptionUpdated follows plan changes, renewals and status changes. A
// pending downgrade is cleared once the subscription is on that plan.
func (h *Handler) subscriptionUpdated(ctx context.Context, raw *stripeapi.Subscription) error {
	if raw.ID == "" {
		return errIgnore
	}
	sub := stripe.FromStripeSubscription(raw)

	user, err := h.subscriber(ctx, sub)
	if err != nil {
		return err
	}
	plan, err := h.planForPrice(ctx, sub.PriceID)
	if err != nil {
		return err
	}
	if plan == nil {
		plan = user.Plan
	}

	m := sub.Membership(plan)
	if plan != nil && user.PendingPlanID != nil && *user.PendingPlanID == plan.ID {
		m.ClearPending = true
	}
	if err := h.users.ApplyMembership(ctx, user.ID, m); err != nil {
		return err
	}

	h.log.Info("membership updated",
		zap.Uint("user_id", user.ID),
		zap.String("status", sub.Status),
		zap.String("tier", string(m.Tier)))
	return nil
}
