package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"membership-portal/internal/app/http/middleware"
	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway is the part of Stripe membership billing the handlers use.
type Gateway interface {
	EnsureCustomer(ctx context.Context, customerID, email string, userID uint, env string) (string, bool, error)
	NewSubscriptionCheckout(ctx context.Context, in stripe.SubscriptionCheckout) (string, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
	Subscription(ctx context.Context, id string) (stripe.Subscription, error)
	Upgrade(ctx context.Context, sub stripe.Subscription, priceID string) (stripe.Subscription, error)
	ScheduleDowngrade(ctx context.Context, sub stripe.Subscription, priceID string) (string, error)
	ReleaseSchedule(ctx context.Context, scheduleID string) error
	CancelSubscription(ctx context.Context, id string) error
}

type Handler struct {
	db      *gorm.DB
	users   *users.Store
	orders  *billing.Orders
	gateway Gateway
	appURL  string
	env     string
	log     *zap.Logger
	now     func() time.Time
}

func NewHandler(db *gorm.DB, store *users.Store, orders *billing.Orders, gateway Gateway, appURL, env string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		db:      db,
		users:   store,
		orders:  orders,
		gateway: gateway,
		appURL:  strings.TrimRight(appURL, "/"),
		env:     env,
		log:     log,
		now:     time.Now,
	}
}

type priceInput struct {
	PriceID string `json:"price_id" binding:"required"`
}

// planByPrice only accepts prices that were synced as plans.
func (h *Handler) planByPrice(ctx context.Context, priceID string) (*plans.Plan, error) {
	var plan plans.Plan
	if err := h.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Field("price_id", "unknown plan")
		}
		return nil, err
	}
	return &plan, nil
}

func (h *Handler) currentUser(c *gin.Context) (*users.User, bool) {
	u := middleware.CurrentUser(c)
	if u == nil {
		apperr.Respond(c, apperr.AuthRequired("User not identified"), "")
		return nil, false
	}
	return u, true
}

// GET /orders
func (h *Handler) Orders(c *gin.Context) {
	orders, err := h.orders.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		apperr.Respond(c, err, "Failed to load orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
