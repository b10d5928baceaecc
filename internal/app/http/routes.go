package routes

import (
	"net/http"

	adminapi "membership-portal/internal/api/admin"
	authapi "membership-portal/internal/api/auth"
	"membership-portal/internal/api/billing"
	cartapi "membership-portal/internal/api/cart"
	checkoutapi "membership-portal/internal/api/checkout"
	contentapi "membership-portal/internal/api/content"
	pagesapi "membership-portal/internal/api/pages"
	"membership-portal/internal/api/plans"
	registrationsapi "membership-portal/internal/api/registrations"
	stripewebhooks "membership-portal/internal/api/stripewebhook"
	usersapi "membership-portal/internal/api/users"
	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/metrics"

	"github.com/gin-gonic/gin"
)

// Handlers is every HTTP surface of the portal.
type Handlers struct {
	Auth          *authapi.Handler
	Users         *usersapi.Handler
	Plans         *plans.Handler
	Billing       *billing.Handler
	Webhook       *stripewebhooks.Handler
	Content       *contentapi.Handler
	Pages         *pagesapi.Handler
	Cart          *cartapi.Handler
	Checkout      *checkoutapi.Handler
	Registrations *registrationsapi.Handler
	Admin         *adminapi.Handler
}

func RegisterRoutes(r *gin.Engine, h Handlers, auth *middleware.Auth) {
	r.POST("/webhook", h.Webhook.Handle)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	public := r.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/register", h.Auth.Register)
	public.POST("/login", h.Auth.Login)
	public.GET("/verify", h.Auth.Verify)
	public.POST("/resend-verification", h.Auth.ResendVerification)
	public.POST("/password-reset", h.Auth.RequestPasswordReset)
	public.POST("/password-reset/confirm", h.Auth.ResetPassword)
	public.GET("/auth/google", h.Auth.GoogleStart)
	public.GET("/auth/google/callback", h.Auth.GoogleCallback)
	public.GET("/plans", h.Plans.List)

	// Visitors and members: the tier decides what comes back.
	open := public.Group("/")
	open.Use(auth.Optional())

	open.GET("/content", h.Content.List)
	open.GET("/content/:slug", h.Content.Detail)
	open.POST("/content/:slug/preview", h.Content.StartPreview)
	open.GET("/content/:slug/preview", h.Content.PreviewStatus)
	open.GET("/content/:slug/preview/events", h.Content.PreviewEvents)
	open.GET("/pages", h.Pages.List)
	open.GET("/pages/:slug", h.Pages.Get)

	// Cart and checkout answer anonymous callers with a login prompt.
	open.GET("/cart", h.Cart.Get)
	open.POST("/cart/items", h.Cart.Add)
	open.PUT("/cart/items/:id", h.Cart.UpdateQuantity)
	open.DELETE("/cart/items/:id", h.Cart.Remove)
	open.DELETE("/cart", h.Cart.Clear)
	open.POST("/cart/discount", h.Cart.ApplyDiscount)
	open.DELETE("/cart/discount", h.Cart.RemoveDiscount)
	open.GET("/checkout", h.Checkout.Begin)
	open.POST("/checkout", h.Checkout.Submit)
	open.GET("/checkout/confirmation/:ref", h.Checkout.Confirmation)

	// Authenticated
	authed := public.Group("/")
	authed.Use(auth.Required())

	authed.GET("/me", h.Users.Me)
	authed.PATCH("/me", h.Users.UpdateProfile)
	authed.POST("/change-password", h.Auth.ChangePassword)
	authed.GET("/orders", h.Billing.Orders)
	authed.GET("/registrations", h.Registrations.Mine)
	authed.POST("/registrations", h.Registrations.Register)

	authed.GET("/courses/:slug/progress", h.Content.Progress)
	authed.POST("/courses/:slug/components/:component/complete", h.Content.Complete)
	authed.DELETE("/courses/:slug/components/:component/complete", h.Content.Uncomplete)

	authed.POST("/membership/checkout-session", h.Billing.CreateCheckoutSession)
	authed.POST("/billing-portal", h.Billing.CreateBillingPortal)
	authed.POST("/membership/refresh", h.Billing.RefreshMembership)

	// Paying members
	members := authed.Group("/membership")
	members.Use(middleware.RequireActiveMembership())
	members.POST("/change-plan", h.Billing.ChangePlan)
	members.POST("/cancel-downgrade", h.Billing.CancelDowngrade)
	members.POST("/cancel", h.Billing.CancelMembership)

	// Admin routes. Authored markup is kept, so no sanitization here.
	admin := r.Group("/admin")
	admin.Use(auth.Required(), middleware.RequireRole(users.RoleAdmin))

	admin.GET("/stats", h.Admin.Stats)
	admin.GET("/users", h.Admin.ListUsers)
	admin.GET("/users/:id", h.Admin.GetUser)
	admin.PATCH("/users/:id/tier", h.Admin.SetTier)
	admin.PATCH("/users/:id/active", h.Admin.SetActive)
	admin.GET("/orders", h.Admin.ListOrders)
	admin.POST("/plans/sync", h.Plans.SyncFromStripe)

	admin.GET("/content", h.Content.AdminList)
	admin.GET("/content/:id", h.Content.AdminGet)
	admin.POST("/content", h.Content.Create)
	admin.PUT("/content/:id", h.Content.Update)
	admin.POST("/content/:id/publish", h.Content.Publish)
	admin.POST("/content/:id/unpublish", h.Content.Unpublish)

	admin.GET("/pages", h.Pages.AdminList)
	admin.GET("/pages/:slug", h.Pages.AdminGet)
	admin.PUT("/pages", h.Pages.Save)
	admin.DELETE("/pages/:slug", h.Pages.Delete)

	admin.POST("/registrations", h.Registrations.Grant)
	admin.PATCH("/registrations/:id/status", h.Registrations.SetStatus)
}
