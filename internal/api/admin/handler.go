package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminUser struct {
	ID                uint       `json:"id"`
	Name              string     `json:"name"`
	Lastname          string     `json:"lastname"`
	Tel               string     `json:"tel"`
	Email             string     `json:"email"`
	Role              string     `json:"role"`
	IsVerified        bool       `json:"is_verified"`
	Tier              string     `json:"tier"`
	PlanName          *string    `json:"plan_name,omitempty"`
	StripeCustomerID  *string    `json:"stripe_customer_id,omitempty"`
	StripeSubID       *string    `json:"stripe_subscription_id,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty"`
}

type AdminUserDetail struct {
	User          AdminUser                    `json:"user"`
	Registrations []registrations.Registration `json:"registrations"`
	Orders        []billing.Order              `json:"orders"`
}

type AdminStats struct {
	TotalUsers    int64            `json:"total_users"`
	UsersPerTier  map[string]int64 `json:"users_per_tier"`
	Orders        int64            `json:"completed_orders"`
	RevenueCents  int64            `json:"revenue_cents"`
	PendingOrders int              `json:"pending_orders"`
}

type RegistrationLister interface {
	ListForUser(ctx context.Context, userID uint) ([]registrations.Registration, error)
}

type Handler struct {
	users  *users.Store
	orders *billing.Orders
	regs   RegistrationLister
	log    *zap.Logger
	now    func() time.Time
}

func NewHandler(store *users.Store, orders *billing.Orders, regs RegistrationLister, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{users: store, orders: orders, regs: regs, log: log, now: time.Now}
}

func toAdminUser(u users.User) AdminUser {
	var planName *string
	if u.Plan != nil {
		planName = &u.Plan.Name
	}
	return AdminUser{
		ID:                u.ID,
		Name:              u.Name,
		Lastname:          u.Lastname,
		Tel:               u.Tel,
		Email:             u.Email,
		Role:              u.Role,
		IsVerified:        u.IsVerified,
		Tier:              string(u.EffectiveTier()),
		PlanName:          planName,
		StripeCustomerID:  u.StripeCustomerID,
		StripeSubID:       u.SubscriptionId,
		SubscriptionStart: u.SubscriptionStart,
		SubscriptionEnd:   u.SubscriptionEnd,
		DeactivatedAt:     u.DeactivatedAt,
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// GET /admin/stats
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	counts, err := h.users.CountByTier(ctx)
	if err != nil {
		apperr.Respond(c, err, "Failed to load stats")
		return
	}
	revenue, err := h.orders.CompletedRevenue(ctx)
	if err != nil {
		apperr.Respond(c, err, "Failed to load stats")
		return
	}
	pending, err := h.orders.List(ctx, billing.StatusPending, 500)
	if err != nil {
		apperr.Respond(c, err, "Failed to load stats")
		return
	}

	stats := AdminStats{
		UsersPerTier:  make(map[string]int64, len(counts)),
		Orders:        revenue.Orders,
		RevenueCents:  revenue.AmountCents,
		PendingOrders: len(pending),
	}
	for tier, n := range counts {
		stats.UsersPerTier[string(tier)] = n
		stats.TotalUsers += n
	}
	c.JSON(http.StatusOK, stats)
}

// GET /admin/users?q=&tier=&limit=
func (h *Handler) ListUsers(c *gin.Context) {
	f := users.ListFilter{Query: c.Query("q")}
	if raw := c.Query("tier"); raw != "" {
		t, ok := plans.LookupTier(raw)
		if !ok {
			apperr.Respond(c, apperr.Field("tier", "unknown tier"), "")
			return
		}
		f.Tier = t
	}
	if raw := c.Query("limit"); raw != "" {
		f.Limit, _ = strconv.Atoi(raw)
	}

	list, err := h.users.List(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, err, "Failed to load users")
		return
	}
	out := make([]AdminUser, 0, len(list))
	for _, u := range list {
		out = append(out, toAdminUser(u))
	}
	c.JSON(http.StatusOK, out)
}

// GET /admin/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	u, err := h.users.ByID(ctx, id)
	if err != nil {
		apperr.Respond(c, err, "Failed to load user")
		return
	}
	regs, err := h.regs.ListForUser(ctx, id)
	if err != nil {
		apperr.Respond(c, err, "Failed to load registrations")
		return
	}
	orders, err := h.orders.ListForUser(ctx, id)
	if err != nil {
		apperr.Respond(c, err, "Failed to load orders")
		return
	}
	c.JSON(http.StatusOK, AdminUserDetail{User: toAdminUser(*u), Registrations: regs, Orders: orders})
}

// PATCH /admin/users/:id/tier
// Overrides the tier until the next subscription event from Stripe.
func (h *Handler) SetTier(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input struct {
		Tier string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.users.SetTier(c.Request.Context(), id, plans.Tier(input.Tier))
	if err != nil {
		apperr.Respond(c, err, "Failed to update tier")
		return
	}
	h.log.Info("tier overridden",
		zap.Uint("user_id", id),
		zap.String("tier", input.Tier),
		zap.Uint("admin_id", middleware.UserID(c)))
	c.JSON(http.StatusOK, toAdminUser(*u))
}

// PATCH /admin/users/:id/active
func (h *Handler) SetActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var input struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if id == middleware.UserID(c) && !*input.Active {
		apperr.Respond(c, apperr.Conflict("Admins cannot deactivate themselves"), "")
		return
	}

	u, err := h.users.SetDeactivated(c.Request.Context(), id, !*input.Active, h.now())
	if err != nil {
		apperr.Respond(c, err, "Failed to update user")
		return
	}
	h.log.Info("account activation changed",
		zap.Uint("user_id", id),
		zap.Bool("active", *input.Active),
		zap.Uint("admin_id", middleware.UserID(c)))
	c.JSON(http.StatusOK, toAdminUser(*u))
}

// GET /admin/orders?status=&limit=
func (h *Handler) ListOrders(c *gin.Context) {
	status := billing.Status(c.Query("status"))
	switch status {
	case "", billing.StatusPending, billing.StatusConfirmed, billing.StatusCompleted, billing.StatusCancelled:
	default:
		apperr.Respond(c, apperr.Field("status", "unknown status"), "")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	orders, err := h.orders.List(c.Request.Context(), status, limit)
	if err != nil {
		apperr.Respond(c, err, "Failed to load orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
