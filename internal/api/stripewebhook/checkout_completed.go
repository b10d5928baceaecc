package stripewebhooks

import (
	"context"
	"fmt"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/billing"

	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
)

func isNotFound(err error) bool {
	return err != nil && apperr.KindOf(err) == apperr.KindNotFound
}

// checkoutSessionCompleted starts a membership: the plan's tier, the
// subscription ids and a membership order for the payment.
func (h *Handler) checkoutSessionCompleted(ctx context.Context, session *stripeapi.CheckoutSession) error {
	if session.Mode != "" && session.Mode != stripeapi.CheckoutSessionModeSubscription {
		return errIgnore
	}

	full, err := h.sessions.CompletedSession(ctx, session.ID)
	if err != nil {
		return err
	}
	sub := full.Subscription
	if sub.CustomerID == "" {
		sub.CustomerID = full.CustomerID
	}

	userID := stripeUserID(sub.Metadata, full.ClientReferenceID)
	if userID == 0 {
		h.log.Warn("checkout session without user", zap.String("session", full.ID))
		return errIgnore
	}
	user, err := h.users.ByID(ctx, userID)
	if isNotFound(err) {
		return errIgnore
	}
	if err != nil {
		return err
	}

	plan, err := h.planForPrice(ctx, sub.PriceID)
	if err != nil {
		return err
	}
	if plan == nil {
		return fmt.Errorf("plan not found for stripe price_id=%s", sub.PriceID)
	}

	// A member holds one subscription; a replaced one is cancelled.
	if user.SubscriptionId != nil && *user.SubscriptionId != "" && *user.SubscriptionId != sub.ID {
		if err := h.sessions.CancelSubscription(ctx, *user.SubscriptionId); err != nil {
			h.log.Warn("cancel replaced subscription", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}

	m := sub.Membership(plan)
	m.ClearPending = true
	if err := h.users.ApplyMembership(ctx, user.ID, m); err != nil {
		return err
	}

	sessionID, subID := full.ID, sub.ID
	order := &billing.Order{
		UserID:               user.ID,
		Category:             billing.CategoryMembership,
		PlanID:               &plan.ID,
		AmountCents:          full.AmountTotal,
		Currency:             plan.Currency,
		Status:               billing.StatusCompleted,
		StripeSessionID:      &sessionID,
		StripeSubscriptionID: &subID,
		BillingEmail:         user.Email,
	}
	if order.Currency == "" {
		order.Currency = "usd"
	}
	if err := h.orders.RecordSession(ctx, order); err != nil {
		return err
	}

	h.log.Info("membership started",
		zap.Uint("user_id", user.ID),
		zap.String("tier", string(m.Tier)),
		zap.String("subscription", sub.ID))
	return nil
}
