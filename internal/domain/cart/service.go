package cart

import (
	"context"
	"fmt"
	"time"

	"membership-portal/internal/apperr"

	"go.uber.org/zap"
)

type Service interface {
	Get(ctx context.Context, userID uint) (*Cart, error)
	AddItem(ctx context.Context, userID, productID uint, qty int) (*Cart, error)
	RemoveItem(ctx context.Context, userID, lineID uint) (*Cart, error)
	UpdateQuantity(ctx context.Context, userID, lineID uint, qty int) (*Cart, error)
	Clear(ctx context.Context, userID uint) (*Cart, error)
	// RemoveItems drops the lines for itemIDs, leaving anything else.
	RemoveItems(ctx context.Context, userID uint, itemIDs []uint) (*Cart, error)
	ApplyDiscount(ctx context.Context, userID uint, code string) (*Cart, error)
	RemoveDiscount(ctx context.Context, userID uint) (*Cart, error)
}

// Recorder receives cart mutations for metrics.
type Recorder interface {
	RecordCartMutation(op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCartMutation(string) {}

type service struct {
	repo     Repository
	currency string
	rec      Recorder
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, currency string, rec Recorder, log *zap.Logger) Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if currency == "" {
		currency = "usd"
	}
	return &service{repo: repo, currency: currency, rec: rec, log: log, now: time.Now}
}

func requireUser(userID uint) error {
	if userID == 0 {
		return apperr.AuthRequired("Please log in to use the cart")
	}
	return nil
}

// load reads the cart fresh and derives its totals.
func (s *service) load(ctx context.Context, userID uint) (*Cart, error) {
	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Recalculate(s.now(), s.currency)
	return c, nil
}

func (s *service) Get(ctx context.Context, userID uint) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.load(ctx, userID)
}

func (s *service) AddItem(ctx context.Context, userID, productID uint, qty int) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if qty < 1 || qty > MaxQuantity {
		return nil, apperr.Field("quantity", fmt.Sprintf("must be between 1 and %d", MaxQuantity))
	}

	item, err := s.repo.FindItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("Product not found")
	}
	// Free items are unlocked by tier or registered for, never bought.
	if item.PriceCents <= 0 {
		return nil, apperr.Field("item_id", "is free, register for it instead")
	}

	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := QuantityLimit(item)
	if c.QuantityOf(item.ID)+qty > limit {
		return nil, apperr.Field("quantity", fmt.Sprintf("at most %d of this item per order", limit))
	}
	if err := s.repo.AddLine(ctx, c.ID, item.ID, qty, limit); err != nil {
		return nil, err
	}
	s.rec.RecordCartMutation("add")
	s.log.Debug("cart item added",
		zap.Uint("user_id", userID), zap.Uint("item_id", item.ID), zap.Int("quantity", qty))
	return s.load(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, lineID uint) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.DeleteLine(ctx, c.ID, lineID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperr.NotFound("Cart item not found")
	}
	s.rec.RecordCartMutation("remove")
	return s.load(ctx, userID)
}

// UpdateQuantity sets a line's quantity. A quantity below 1 leaves the cart
// untouched; removing a line is RemoveItem's job.
func (s *service) UpdateQuantity(ctx context.Context, userID, lineID uint, qty int) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return s.load(ctx, userID)
	}
	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	line := c.Line(lineID)
	if line == nil {
		return nil, apperr.NotFound("Cart item not found")
	}
	if limit := QuantityLimit(line.Item); qty > limit {
		return nil, apperr.Field("quantity", fmt.Sprintf("at most %d of this item per order", limit))
	}
	updated, err := s.repo.SetQuantity(ctx, c.ID, lineID, qty)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, apperr.NotFound("Cart item not found")
	}
	s.rec.RecordCartMutation("update")
	return s.load(ctx, userID)
}

func (s *service) Clear(ctx context.Context, userID uint) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteLines(ctx, c.ID); err != nil {
		return nil, err
	}
	if err := s.repo.SetDiscount(ctx, c.ID, nil); err != nil {
		return nil, err
	}
	s.rec.RecordCartMutation("clear")
	return s.load(ctx, userID)
}

func (s *service) RemoveItems(ctx context.Context, userID uint, itemIDs []uint) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteItems(ctx, c.ID, itemIDs); err != nil {
		return nil, err
	}
	after, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if after.Empty() && after.DiscountCodeID != nil {
		if err := s.repo.SetDiscount(ctx, c.ID, nil); err != nil {
			return nil, err
		}
		after.DiscountCodeID, after.Discount = nil, nil
	}
	s.rec.RecordCartMutation("remove")
	return after, nil
}

func (s *service) ApplyDiscount(ctx context.Context, userID uint, code string) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, apperr.Field("code", "is required")
	}

	d, err := s.repo.FindDiscount(ctx, code)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.UsableAt(s.now()) {
		return nil, apperr.Field("code", "is invalid or expired")
	}

	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetDiscount(ctx, c.ID, &d.ID); err != nil {
		return nil, err
	}
	s.rec.RecordCartMutation("discount")
	return s.load(ctx, userID)
}

func (s *service) RemoveDiscount(ctx context.Context, userID uint) (*Cart, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	c, err := s.repo.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetDiscount(ctx, c.ID, nil); err != nil {
		return nil, err
	}
	return s.load(ctx, userID)
}
