package middleware

import (
	"time"

	"membership-portal/internal/apperr"
	stripeinfra "membership-portal/internal/infra/stripe"

	"github.com/gin-gonic/gin"
)

// RequireActiveMembership lets through members whose Stripe subscription
// still grants their tier. Must run after Auth.Required.
func RequireActiveMembership() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			apperr.Respond(c, apperr.AuthRequired("Login required"), "")
			c.Abort()
			return
		}

		if user.SubscriptionId == nil || user.StripeSubscriptionStatus == nil ||
			!stripeinfra.GrantsMembership(*user.StripeSubscriptionStatus) {
			apperr.Respond(c, apperr.AccessDenied("Membership not found or expired", "/membership"), "")
			c.Abort()
			return
		}

		if user.SubscriptionEnd != nil && time.Now().After(*user.SubscriptionEnd) {
			apperr.Respond(c, apperr.AccessDenied("Your membership has expired", "/membership"), "")
			c.Abort()
			return
		}

		c.Next()
	}
}
