package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"membership-portal/internal/apperr"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Recorder counts written grants.
type Recorder interface {
	RecordGrant(accessType string)
}

type Writer struct {
	db  *gorm.DB
	log *zap.Logger
	rec Recorder
	now func() time.Time
}

func NewWriter(db *gorm.DB, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{db: db, log: log, now: time.Now}
}

// WithRecorder returns w reporting grants to rec.
func (w *Writer) WithRecorder(rec Recorder) *Writer {
	w.rec = rec
	return w
}

type grantOptions struct {
	orderID *uint
	tx      *gorm.DB
}

type GrantOption func(*grantOptions)

// WithOrder links the grant to the order that paid for it.
func WithOrder(orderID uint) GrantOption {
	return func(o *grantOptions) { o.orderID = &orderID }
}

// InTx runs the write inside an existing transaction.
func InTx(tx *gorm.DB) GrantOption {
	return func(o *grantOptions) { o.tx = tx }
}

// validateGrant enforces the expiry invariants: lifetime grants never
// expire, limited grants must expire in the future.
func validateGrant(now time.Time, accessType AccessType, expiresAt *time.Time) error {
	switch accessType {
	case Lifetime:
		if expiresAt != nil {
			return apperr.Field("access_expires_at", "must be empty for lifetime access")
		}
	case Limited:
		if expiresAt == nil {
			return apperr.Field("access_expires_at", "is required for limited access")
		}
		if !expiresAt.After(now) {
			return apperr.Field("access_expires_at", "must be in the future")
		}
	default:
		return apperr.Field("access_type", "must be lifetime or limited")
	}
	return nil
}

// GrantAccess records that userID may access itemID. Calling it again for
// the same (user, item, access type) updates the existing registration
// instead of adding one, so retries are safe.
func (w *Writer) GrantAccess(ctx context.Context, userID, itemID uint, accessType AccessType, expiresAt *time.Time, opts ...GrantOption) (*Registration, error) {
	const op = "registrations.GrantAccess"

	if userID == 0 {
		return nil, apperr.AuthRequired("Login required")
	}
	if err := validateGrant(w.now(), accessType, expiresAt); err != nil {
		return nil, err
	}

	o := grantOptions{tx: w.db}
	for _, opt := range opts {
		opt(&o)
	}
	db := o.tx.WithContext(ctx)

	reg := Registration{
		UserID:          userID,
		ItemID:          itemID,
		AccessType:      accessType,
		AccessExpiresAt: expiresAt,
		Status:          StatusConfirmed,
		OrderID:         o.orderID,
	}

	assignments := map[string]interface{}{
		"access_expires_at": expiresAt,
		"updated_at":        w.now(),
		// a completed registration stays completed; anything else is (re)confirmed
		"status": gorm.Expr("CASE WHEN registrations.status = ? THEN registrations.status ELSE ? END",
			StatusCompleted, StatusConfirmed),
	}
	if o.orderID != nil {
		assignments["order_id"] = *o.orderID
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "item_id"}, {Name: "access_type"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&reg).Error
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var stored Registration
	if err := db.Where("user_id = ? AND item_id = ? AND access_type = ?", userID, itemID, accessType).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("%s: reload: %w", op, err)
	}

	w.log.Info("access granted",
		zap.Uint("user_id", userID),
		zap.Uint("item_id", itemID),
		zap.String("access_type", string(accessType)),
		zap.Uint("registration_id", stored.ID))
	if w.rec != nil {
		w.rec.RecordGrant(string(accessType))
	}
	return &stored, nil
}

// ListForUser returns every registration of the user, newest first, with
// the item loaded.
func (w *Writer) ListForUser(ctx context.Context, userID uint) ([]Registration, error) {
	var regs []Registration
	if err := w.db.WithContext(ctx).
		Preload("Item").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("registrations.ListForUser: %w", err)
	}
	return regs, nil
}

// ForUserItem returns the user's registrations for one item, read fresh.
func (w *Writer) ForUserItem(ctx context.Context, userID, itemID uint) ([]Registration, error) {
	if userID == 0 {
		return nil, nil
	}
	var regs []Registration
	if err := w.db.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("registrations.ForUserItem: %w", err)
	}
	return regs, nil
}

// SetStatus moves a registration to status. Backward moves need override,
// which only admins may pass.
func (w *Writer) SetStatus(ctx context.Context, id uint, status Status, override bool) (*Registration, error) {
	const op = "registrations.SetStatus"
	if !status.Valid() {
		return nil, apperr.Field("status", "unknown status")
	}

	var reg Registration
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&reg, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Registration not found")
			}
			return err
		}
		if !override && !CanTransition(reg.Status, status) {
			return apperr.Conflict(fmt.Sprintf("cannot move registration from %s to %s", reg.Status, status))
		}
		reg.Status = status
		return tx.Model(&Registration{}).Where("id = ?", id).Update("status", status).Error
	})
	if err != nil {
		if apperr.KindOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &reg, nil
}
