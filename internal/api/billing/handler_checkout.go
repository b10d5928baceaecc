package billing

import (
	"net/http"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST /membership/checkout-session
func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	var body priceInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if !user.IsVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "Please verify your email first"})
		return
	}

	ctx := c.Request.Context()
	plan, err := h.planByPrice(ctx, body.PriceID)
	if err != nil {
		apperr.Respond(c, err, "Failed to load plan")
		return
	}
	if user.SubscriptionId != nil && *user.SubscriptionId != "" &&
		stripe.GrantsMembership(stripe.NormalizeStatus(user.StripeSubscriptionStatus)) {
		apperr.Respond(c, apperr.Conflict("Already subscribed, change plan instead"), "")
		return
	}

	existing := ""
	if user.StripeCustomerID != nil {
		existing = *user.StripeCustomerID
	}
	customerID, created, err := h.gateway.EnsureCustomer(ctx, existing, user.Email, user.ID, h.env)
	if err != nil {
		h.log.Error("membership checkout: customer", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create Stripe customer"})
		return
	}
	if created {
		if err := h.db.WithContext(ctx).Model(&users.User{}).
			Where("id = ?", user.ID).
			Update("stripe_customer_id", customerID).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store Stripe customer"})
			return
		}
	}

	url, err := h.gateway.NewSubscriptionCheckout(ctx, stripe.SubscriptionCheckout{
		CustomerID: customerID,
		PriceID:    plan.StripePriceID,
		UserID:     user.ID,
		PlanID:     plan.ID,
		SuccessURL: h.appURL + "/account",
		CancelURL:  h.appURL + "/account?canceled=1",
	})
	if err != nil {
		h.log.Error("membership checkout: session", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// POST /billing-portal
func (h *Handler) CreateBillingPortal(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		apperr.Respond(c, apperr.Conflict("No Stripe customer yet (subscribe first)"), "")
		return
	}

	url, err := h.gateway.PortalURL(c.Request.Context(), *user.StripeCustomerID, h.appURL+"/account")
	if err != nil {
		h.log.Error("billing portal", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not create billing portal session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
