package billing

import (
	"net/http"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /membership/cancel-downgrade
func (h *Handler) CancelDowngrade(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.StripeScheduleID == nil || *user.StripeScheduleID == "" || user.PendingPlanID == nil {
		c.JSON(http.StatusOK, gin.H{"message": "No pending downgrade to cancel"})
		return
	}

	ctx := c.Request.Context()
	scheduleID := *user.StripeScheduleID
	if err := h.gateway.ReleaseSchedule(ctx, scheduleID); err != nil {
		h.log.Error("cancel downgrade: release", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to release Stripe schedule"})
		return
	}

	if err := h.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"pending_plan_id":         nil,
			"pending_plan_start_date": nil,
			"stripe_schedule_id":      nil,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear pending downgrade"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Pending downgrade cancelled",
		"schedule_id": scheduleID,
	})
}

// POST /membership/cancel ends the subscription now and drops the member
// to free. The subscription.deleted webhook that follows is a no-op.
func (h *Handler) CancelMembership(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.SubscriptionId == nil || *user.SubscriptionId == "" {
		apperr.Respond(c, apperr.Conflict("No subscription to cancel"), "")
		return
	}

	ctx := c.Request.Context()
	if err := h.gateway.CancelSubscription(ctx, *user.SubscriptionId); err != nil {
		h.log.Error("cancel membership", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to cancel subscription"})
		return
	}

	now := h.now()
	if err := h.users.ApplyMembership(ctx, user.ID, users.Membership{
		Status:       "canceled",
		Tier:         plans.TierFree,
		PeriodEnd:    &now,
		ClearPending: true,
	}); err != nil {
		apperr.Respond(c, err, "Failed to update membership")
		return
	}
	h.log.Info("membership cancelled", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{"message": "Membership cancelled", "tier": plans.TierFree})
}

// POST /membership/refresh pulls the subscription from Stripe, for when the
// website returns from checkout before the webhook lands.
func (h *Handler) RefreshMembership(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.SubscriptionId == nil || *user.SubscriptionId == "" {
		c.JSON(http.StatusOK, gin.H{"tier": user.EffectiveTier()})
		return
	}

	ctx := c.Request.Context()
	sub, err := h.gateway.Subscription(ctx, *user.SubscriptionId)
	if err != nil {
		h.log.Warn("refresh membership", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch Stripe subscription"})
		return
	}

	plan, err := h.planByPrice(ctx, sub.PriceID)
	if err != nil && apperr.KindOf(err) != apperr.KindValidation {
		apperr.Respond(c, err, "Failed to load plan")
		return
	}
	m := sub.Membership(plan)
	if err := h.users.ApplyMembership(ctx, user.ID, m); err != nil {
		apperr.Respond(c, err, "Failed to update membership")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tier": m.Tier, "status": m.Status})
}
