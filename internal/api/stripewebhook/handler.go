package stripewebhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/infra/stripe"

	"github.com/gin-gonic/gin"
	stripeapi "github.com/stripe/stripe-go/v75"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxBodyBytes = 65536

// Sessions loads hosted checkout sessions and retires replaced
// subscriptions.
type Sessions interface {
	CompletedSession(ctx context.Context, sessionID string) (stripe.CompletedSession, error)
	CancelSubscription(ctx context.Context, id string) error
}

// Fulfiller finishes a paid order.
type Fulfiller interface {
	Fulfil(ctx context.Context, order *billing.Order) error
}

type Recorder interface {
	RecordWebhook(eventType, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordWebhook(string, string) {}

type Handler struct {
	secret   string
	db       *gorm.DB
	users    *users.Store
	orders   *billing.Orders
	sessions Sessions
	fulfil   Fulfiller
	rec      Recorder
	log      *zap.Logger
}

type Deps struct {
	Secret   string
	DB       *gorm.DB
	Users    *users.Store
	Orders   *billing.Orders
	Sessions Sessions
	Fulfil   Fulfiller
	Recorder Recorder
	Log      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		secret:   d.Secret,
		db:       d.DB,
		users:    d.Users,
		orders:   d.Orders,
		sessions: d.Sessions,
		fulfil:   d.Fulfil,
		rec:      d.Recorder,
		log:      d.Log,
	}
	if h.rec == nil {
		h.rec = nopRecorder{}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

// errIgnore marks events that are acknowledged without action so Stripe
// stops retrying them.
var errIgnore = errors.New("ignored")

// POST /webhook
// Failures that a retry could fix answer 500 so Stripe redelivers.
func (h *Handler) Handle(c *gin.Context) {
	if h.secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "STRIPE_WEBHOOK_SECRET not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	event, err := stripe.VerifyEvent(payload, c.GetHeader("Stripe-Signature"), h.secret)
	if err != nil {
		h.log.Warn("stripe signature verification failed", zap.Error(err))
		h.rec.RecordWebhook("unknown", "bad_signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	}

	eventType := string(event.Type)
	ctx := c.Request.Context()
	switch eventType {
	case "checkout.session.completed":
		var session stripeapi.CheckoutSession
		err = decode(event, &session, func() error { return h.checkoutSessionCompleted(ctx, &session) })
	case "customer.subscription.updated":
		var sub stripeapi.Subscription
		err = decode(event, &sub, func() error { return h.subscriptionUpdated(ctx, &sub) })
	case "customer.subscription.deleted":
		var sub stripeapi.Subscription
		err = decode(event, &sub, func() error { return h.subscriptionDeleted(ctx, &sub) })
	case "payment_intent.succeeded":
		var pi stripeapi.PaymentIntent
		err = decode(event, &pi, func() error { return h.paymentSucceeded(ctx, &pi) })
	case "payment_intent.payment_failed":
		var pi stripeapi.PaymentIntent
		err = decode(event, &pi, func() error { return h.paymentFailed(ctx, &pi) })
	default:
		err = errIgnore
	}

	var bad *badPayload
	switch {
	case err == nil:
		h.rec.RecordWebhook(eventType, "processed")
		h.log.Info("stripe event processed", zap.String("type", eventType), zap.String("event_id", event.ID))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	case errors.Is(err, errIgnore):
		h.rec.RecordWebhook(eventType, "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case errors.As(err, &bad):
		h.rec.RecordWebhook(eventType, "bad_payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": bad.Error()})
	default:
		h.rec.RecordWebhook(eventType, "error")
		h.log.Error("stripe event failed", zap.String("type", eventType), zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
	}
}

type badPayload struct{ err error }

func (b *badPayload) Error() string { return "Failed to parse event: " + b.err.Error() }

func decode(event stripeapi.Event, into any, then func() error) error {
	if err := json.Unmarshal(event.Data.Raw, into); err != nil {
		return &badPayload{err: err}
	}
	return then()
}

// planForPrice returns nil when the price was never synced.
func (h *Handler) planForPrice(ctx context.Context, priceID string) (*plans.Plan, error) {
	if priceID == "" {
		return nil, nil
	}
	var plan plans.Plan
	err := h.db.WithContext(ctx).Where("stripe_price_id = ?", priceID).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// subscriber finds the member by metadata.user_id, then by subscription id.
func (h *Handler) subscriber(ctx context.Context, sub stripe.Subscription) (*users.User, error) {
	if id := stripe.UserIDFromMetadata(sub.Metadata, ""); id != 0 {
		u, err := h.users.ByID(ctx, id)
		if err == nil {
			return u, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	u, err := h.users.BySubscription(ctx, sub.ID)
	if isNotFound(err) {
		return nil, errIgnore
	}
	return u, err
}
