package cart

import (
	"strings"
	"time"

	"membership-portal/internal/domain/content"
)

// Cart belongs to exactly one user. Totals are derived on every load and
// never persisted.
type Cart struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UserID         uint          `gorm:"not null;uniqueIndex" json:"user_id"`
	DiscountCodeID *uint         `json:"-"`
	Discount       *DiscountCode `gorm:"foreignKey:DiscountCodeID;constraint:OnDelete:SET NULL;" json:"discount,omitempty"`
	Items          []CartItem    `gorm:"constraint:OnDelete:CASCADE;" json:"items"`

	SubtotalCents int64  `gorm:"-" json:"subtotal_cents"`
	DiscountCents int64  `gorm:"-" json:"discount_cents"`
	TotalCents    int64  `gorm:"-" json:"total_cents"`
	Currency      string `gorm:"-" json:"currency"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CartItem struct {
	ID       uint          `gorm:"primaryKey" json:"id"`
	CartID   uint          `gorm:"not null;uniqueIndex:idx_cart_items_line,priority:1" json:"-"`
	ItemID   uint          `gorm:"not null;uniqueIndex:idx_cart_items_line,priority:2" json:"item_id"`
	Item     *content.Item `gorm:"constraint:OnDelete:CASCADE;" json:"item,omitempty"`
	Quantity int           `gorm:"not null;default:1" json:"quantity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxQuantity bounds a shop product line.
const MaxQuantity = 99

// QuantityLimit is how many of item one cart may hold. Teachings, retreats
// and courses grant access and are bought once.
func QuantityLimit(item *content.Item) int {
	if item == nil || item.Kind == content.KindProduct {
		return MaxQuantity
	}
	return 1
}

// Line returns the cart line with id, or nil.
func (c *Cart) Line(id uint) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// QuantityOf is the quantity of itemID already in the cart.
func (c *Cart) QuantityOf(itemID uint) int {
	for _, line := range c.Items {
		if line.ItemID == itemID {
			return line.Quantity
		}
	}
	return 0
}

// LineTotal is price times quantity for one line.
func (ci CartItem) LineTotal() int64 {
	if ci.Item == nil {
		return 0
	}
	return ci.Item.PriceCents * int64(ci.Quantity)
}

type DiscountCode struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"not null;uniqueIndex" json:"code"`
	// Exactly one of PercentOff (1-100) or AmountOffCents is set.
	PercentOff     int        `gorm:"not null;default:0" json:"percent_off,omitempty"`
	AmountOffCents int64      `gorm:"not null;default:0" json:"amount_off_cents,omitempty"`
	Active         bool       `gorm:"not null;default:true" json:"active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsableAt reports whether the code can be applied at now.
func (d DiscountCode) UsableAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	validPercent := d.PercentOff >= 1 && d.PercentOff <= 100
	return validPercent || d.AmountOffCents > 0
}

// Amount returns the discount on subtotal, never more than subtotal.
func (d DiscountCode) Amount(subtotal int64) int64 {
	var off int64
	switch {
	case d.PercentOff > 0:
		off = subtotal * int64(d.PercentOff) / 100
	case d.AmountOffCents > 0:
		off = d.AmountOffCents
	}
	if off > subtotal {
		off = subtotal
	}
	if off < 0 {
		off = 0
	}
	return off
}

// Recalculate derives subtotal, discount and total from the loaded lines.
func (c *Cart) Recalculate(now time.Time, defaultCurrency string) {
	var subtotal int64
	currency := defaultCurrency
	for _, line := range c.Items {
		subtotal += line.LineTotal()
		if line.Item != nil && line.Item.Currency != "" {
			currency = line.Item.Currency
		}
	}

	var discount int64
	if c.Discount != nil && c.Discount.UsableAt(now) {
		discount = c.Discount.Amount(subtotal)
	}

	c.SubtotalCents = subtotal
	c.DiscountCents = discount
	c.TotalCents = subtotal - discount
	if c.TotalCents < 0 {
		c.TotalCents = 0
	}
	c.Currency = currency
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.Items) == 0 }
