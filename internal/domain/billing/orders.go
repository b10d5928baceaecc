package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"membership-portal/internal/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Orders struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewOrders(db *gorm.DB, log *zap.Logger) *Orders {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orders{db: db, log: log}
}

// CreatePending stores o as a pending order, assigning a reference.
func (s *Orders) CreatePending(ctx context.Context, o *Order) error {
	if o.Reference == "" {
		o.Reference = uuid.NewString()
	}
	o.Status = StatusPending
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("billing.CreatePending: %w", err)
	}
	return nil
}

func (s *Orders) find(ctx context.Context, op, query string, args ...any) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).Preload("Lines").Where(query, args...).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &o, nil
}

func (s *Orders) ByID(ctx context.Context, id uint) (*Order, error) {
	return s.find(ctx, "billing.ByID", "id = ?", id)
}

func (s *Orders) ByReference(ctx context.Context, ref string) (*Order, error) {
	return s.find(ctx, "billing.ByReference", "reference = ?", ref)
}

// ByReferenceForUser hides other users' orders behind NotFound.
func (s *Orders) ByReferenceForUser(ctx context.Context, ref string, userID uint) (*Order, error) {
	return s.find(ctx, "billing.ByReferenceForUser", "reference = ? AND user_id = ?", ref, userID)
}

func (s *Orders) ByPaymentIntent(ctx context.Context, paymentIntentID string) (*Order, error) {
	return s.find(ctx, "billing.ByPaymentIntent", "stripe_payment_intent_id = ?", paymentIntentID)
}

func (s *Orders) AttachPaymentIntent(ctx context.Context, id uint, paymentIntentID string) error {
	if err := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Update("stripe_payment_intent_id", paymentIntentID).Error; err != nil {
		return fmt.Errorf("billing.AttachPaymentIntent: %w", err)
	}
	return nil
}

// Transition moves the order to status when the current status allows it.
// It reports false when the order was already past that point, which makes
// webhook redeliveries harmless.
func (s *Orders) Transition(ctx context.Context, id uint, to Status, updates map[string]interface{}) (bool, error) {
	from := allowedFrom(to)
	if len(from) == 0 {
		return false, fmt.Errorf("billing.Transition: no path to %s", to)
	}

	fields := map[string]interface{}{"status": to}
	for k, v := range updates {
		fields[k] = v
	}
	if to == StatusCompleted {
		if _, ok := fields["completed_at"]; !ok {
			fields["completed_at"] = time.Now()
		}
	}

	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("billing.Transition: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info("order status changed", zap.Uint("order_id", id), zap.String("status", string(to)))
	}
	return res.RowsAffected > 0, nil
}

// RecordSession stores a completed hosted-checkout membership payment,
// once per Stripe session.
func (s *Orders) RecordSession(ctx context.Context, o *Order) error {
	if o.StripeSessionID == nil {
		return fmt.Errorf("billing.RecordSession: missing session id")
	}
	if o.Reference == "" {
		o.Reference = uuid.NewString()
	}
	if o.Category == "" {
		o.Category = CategoryMembership
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_subscription_id", "amount_cents", "status", "receipt_url", "plan_id", "updated_at",
		}),
	}).Create(o).Error
	if err != nil {
		return fmt.Errorf("billing.RecordSession: %w", err)
	}
	return nil
}

func (s *Orders) ListForUser(ctx context.Context, userID uint) ([]Order, error) {
	var out []Order
	if err := s.db.WithContext(ctx).
		Preload("Lines").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("billing.ListForUser: %w", err)
	}
	return out, nil
}

// List returns the most recent orders across users, optionally by status.
func (s *Orders) List(ctx context.Context, status Status, limit int) ([]Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&Order{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Order
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("billing.List: %w", err)
	}
	return out, nil
}

type Revenue struct {
	Orders      int64 `json:"orders"`
	AmountCents int64 `json:"amount_cents"`
}

// CompletedRevenue sums completed orders.
func (s *Orders) CompletedRevenue(ctx context.Context) (Revenue, error) {
	var r Revenue
	err := s.db.WithContext(ctx).Model(&Order{}).
		Select("COUNT(*) AS orders, COALESCE(SUM(amount_cents), 0) AS amount_cents").
		Where("status = ?", StatusCompleted).
		Scan(&r).Error
	if err != nil {
		return Revenue{}, fmt.Errorf("billing.CompletedRevenue: %w", err)
	}
	return r, nil
}
