package billing

import (
	"net/http"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /membership/change-plan
// Upgrades apply now with proration; downgrades wait for the period end.
func (h *Handler) ChangePlan(c *gin.Context) {
	var body priceInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.SubscriptionId == nil || *user.SubscriptionId == "" {
		apperr.Respond(c, apperr.Conflict("No active subscription to change. Use checkout first."), "")
		return
	}

	ctx := c.Request.Context()
	target, err := h.planByPrice(ctx, body.PriceID)
	if err != nil {
		apperr.Respond(c, err, "Failed to load plan")
		return
	}

	sub, err := h.gateway.Subscription(ctx, *user.SubscriptionId)
	if err != nil {
		h.log.Error("change plan: fetch subscription", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch Stripe subscription"})
		return
	}
	if sub.ItemID == "" || sub.PriceID == "" {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Subscription has no price item"})
		return
	}
	if sub.PriceID == target.StripePriceID {
		c.JSON(http.StatusOK, gin.H{"message": "Already on this plan"})
		return
	}

	if isUpgrade(user.Plan, target) {
		updated, err := h.gateway.Upgrade(ctx, sub, target.StripePriceID)
		if err != nil {
			h.log.Error("change plan: upgrade", zap.Uint("user_id", user.ID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upgrade subscription"})
			return
		}
		if user.StripeScheduleID != nil && *user.StripeScheduleID != "" {
			if err := h.gateway.ReleaseSchedule(ctx, *user.StripeScheduleID); err != nil {
				h.log.Warn("change plan: release schedule", zap.Uint("user_id", user.ID), zap.Error(err))
			}
		}

		m := updated.Membership(target)
		m.ClearPending = true
		if err := h.users.ApplyMembership(ctx, user.ID, m); err != nil {
			apperr.Respond(c, err, "Failed to update membership")
			return
		}
		h.log.Info("membership upgraded",
			zap.Uint("user_id", user.ID),
			zap.String("tier", string(m.Tier)),
			zap.String("price_id", target.StripePriceID))
		c.JSON(http.StatusOK, gin.H{
			"message":            "Upgraded now (prorated automatically by Stripe)",
			"is_upgrade":         true,
			"tier":               m.Tier,
			"current_period_end": m.PeriodEnd,
			"subscription_id":    updated.ID,
		})
		return
	}

	scheduleID, err := h.gateway.ScheduleDowngrade(ctx, sub, target.StripePriceID)
	if err != nil {
		h.log.Error("change plan: schedule downgrade", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to schedule downgrade"})
		return
	}

	// The current plan and tier stay until the period ends.
	effectiveAt := sub.CurrentPeriodEnd
	if err := h.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"pending_plan_id":         target.ID,
			"pending_plan_start_date": effectiveAt,
			"stripe_schedule_id":      scheduleID,
			"current_period_end":      effectiveAt,
			"subscription_end":        effectiveAt,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store pending downgrade"})
		return
	}

	h.log.Info("membership downgrade scheduled",
		zap.Uint("user_id", user.ID),
		zap.String("price_id", target.StripePriceID),
		zap.Time("effective_at", effectiveAt))
	c.JSON(http.StatusOK, gin.H{
		"message":      "Downgrade scheduled for next billing cycle",
		"is_upgrade":   false,
		"effective_at": effectiveAt,
		"schedule_id":  scheduleID,
	})
}

// isUpgrade compares by tier first and by price within a tier.
func isUpgrade(current, target *plans.Plan) bool {
	if current == nil {
		return true
	}
	switch plans.PlanTier(target).Compare(plans.PlanTier(current)) {
	case 1:
		return true
	case -1:
		return false
	}
	return target.PriceCents > current.PriceCents
}
