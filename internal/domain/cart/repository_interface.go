package cart

import (
	"context"

	"membership-portal/internal/domain/content"
)

type Repository interface {
	// LoadOrCreate returns the user's cart with lines, items and discount loaded.
	LoadOrCreate(ctx context.Context, userID uint) (*Cart, error)
	FindItem(ctx context.Context, itemID uint) (*content.Item, error)
	// AddLine merges into an existing line, never past limit.
	AddLine(ctx context.Context, cartID, itemID uint, qty, limit int) error
	SetQuantity(ctx context.Context, cartID, lineID uint, qty int) (bool, error)
	DeleteLine(ctx context.Context, cartID, lineID uint) (bool, error)
	DeleteLines(ctx context.Context, cartID uint) error
	DeleteItems(ctx context.Context, cartID uint, itemIDs []uint) error
	FindDiscount(ctx context.Context, code string) (*DiscountCode, error)
	SetDiscount(ctx context.Context, cartID uint, discountID *uint) error
}
