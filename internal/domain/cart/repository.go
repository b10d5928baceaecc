package cart

import (
	"context"
	"errors"
	"fmt"

	"membership-portal/internal/domain/content"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) LoadOrCreate(ctx context.Context, userID uint) (*Cart, error) {
	db := r.db.WithContext(ctx)

	c := Cart{UserID: userID}
	// concurrent first requests may race; the unique index keeps one row
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Where(Cart{UserID: userID}).
		FirstOrCreate(&c).Error; err != nil {
		return nil, fmt.Errorf("cart.LoadOrCreate: %w", err)
	}

	var loaded Cart
	err := db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Item").
		Preload("Discount").
		Where("user_id = ?", userID).
		First(&loaded).Error
	if err != nil {
		return nil, fmt.Errorf("cart.LoadOrCreate: reload: %w", err)
	}
	return &loaded, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uint) (*content.Item, error) {
	var item content.Item
	err := r.db.WithContext(ctx).Where("id = ? AND published = ?", itemID, true).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart.FindItem: %w", err)
	}
	return &item, nil
}

// AddLine inserts a line or increases the quantity of the existing one,
// capped at limit so two racing adds cannot push it past the bound.
func (r *repository) AddLine(ctx context.Context, cartID, itemID uint, qty, limit int) error {
	line := CartItem{CartID: cartID, ItemID: itemID, Quantity: qty}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cart_id"}, {Name: "item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity": gorm.Expr(
				"CASE WHEN cart_items.quantity + ? > ? THEN ? ELSE cart_items.quantity + ? END",
				qty, limit, limit, qty),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&line).Error
	if err != nil {
		return fmt.Errorf("cart.AddLine: %w", err)
	}
	return nil
}

func (r *repository) SetQuantity(ctx context.Context, cartID, lineID uint, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&CartItem{}).
		Where("id = ? AND cart_id = ?", lineID, cartID).
		Update("quantity", qty)
	if res.Error != nil {
		return false, fmt.Errorf("cart.SetQuantity: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeleteLine(ctx context.Context, cartID, lineID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND cart_id = ?", lineID, cartID).Delete(&CartItem{})
	if res.Error != nil {
		return false, fmt.Errorf("cart.DeleteLine: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeleteLines(ctx context.Context, cartID uint) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("cart.DeleteLines: %w", err)
	}
	return nil
}

func (r *repository) DeleteItems(ctx context.Context, cartID uint, itemIDs []uint) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND item_id IN ?", cartID, itemIDs).
		Delete(&CartItem{}).Error; err != nil {
		return fmt.Errorf("cart.DeleteItems: %w", err)
	}
	return nil
}

func (r *repository) FindDiscount(ctx context.Context, code string) (*DiscountCode, error) {
	var d DiscountCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart.FindDiscount: %w", err)
	}
	return &d, nil
}

func (r *repository) SetDiscount(ctx context.Context, cartID uint, discountID *uint) error {
	if err := r.db.WithContext(ctx).Model(&Cart{}).
		Where("id = ?", cartID).
		Update("discount_code_id", discountID).Error; err != nil {
		return fmt.Errorf("cart.SetDiscount: %w", err)
	}
	return nil
}
