package billing

import (
	"time"

	"membership-portal/internal/domain/registrations"
)

type Category string

const (
	CategoryDonation   Category = "donation"
	CategoryRetreat    Category = "retreat"
	CategoryCourse     Category = "course"
	CategoryTeaching   Category = "teaching"
	CategoryCart       Category = "cart"
	CategoryMembership Category = "membership"
)

// ParseCategory accepts the purchase categories a checkout can be seeded with.
// Membership orders only come from Stripe hosted checkout.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case CategoryDonation, CategoryRetreat, CategoryCourse, CategoryTeaching, CategoryCart:
		return c, true
	}
	return "", false
}

// GrantsAccess reports whether paying for the category entitles the buyer
// to catalog items.
func (c Category) GrantsAccess() bool {
	switch c {
	case CategoryRetreat, CategoryCourse, CategoryTeaching, CategoryCart:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Order is one payment attempt. Reference is public and doubles as the
// payment provider idempotency key.
type Order struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Reference string   `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`
	UserID    uint     `gorm:"not null;index" json:"user_id"`
	Category  Category `gorm:"type:varchar(20);not null;index" json:"category"`

	ItemID     *uint                    `gorm:"index" json:"item_id,omitempty"`
	AccessType registrations.AccessType `gorm:"type:varchar(16)" json:"access_type,omitempty"`
	// AccessDays is the length of a limited grant, counted from fulfilment.
	AccessDays int   `gorm:"not null;default:0" json:"access_days,omitempty"`
	PlanID     *uint `json:"plan_id,omitempty"`

	AmountCents int64  `gorm:"not null" json:"amount_cents"`
	Currency    string `gorm:"type:varchar(8);not null;default:'usd'" json:"currency"`
	Status      Status `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	StripePaymentIntentID *string `gorm:"uniqueIndex" json:"-"`
	StripeSessionID       *string `gorm:"uniqueIndex" json:"-"`
	StripeSubscriptionID  *string `json:"-"`
	ReceiptURL            *string `json:"receipt_url,omitempty"`
	FailureMessage        string  `json:"failure_message,omitempty"`

	BillingName       string `json:"billing_name,omitempty"`
	BillingEmail      string `json:"billing_email,omitempty"`
	BillingAddress    string `json:"billing_address,omitempty"`
	BillingCountry    string `json:"billing_country,omitempty"`
	BillingPostalCode string `json:"billing_postal_code,omitempty"`

	Lines []OrderLine `gorm:"constraint:OnDelete:CASCADE;" json:"lines,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OrderLine snapshots what was bought so later price edits do not rewrite
// history.
type OrderLine struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrderID        uint   `gorm:"not null;index" json:"-"`
	ItemID         uint   `gorm:"not null" json:"item_id"`
	ItemKind       string `gorm:"type:varchar(20)" json:"item_kind"`
	Title          string `json:"title"`
	Quantity       int    `gorm:"not null;default:1" json:"quantity"`
	UnitPriceCents int64  `gorm:"not null" json:"unit_price_cents"`
}

// GrantedItemIDs lists the catalog items the order entitles the buyer to.
// Shop products are shipped, not granted. Lines priced at zero were not
// paid for and grant nothing.
func (o Order) GrantedItemIDs() []uint {
	if !o.Category.GrantsAccess() {
		return nil
	}
	if len(o.Lines) == 0 {
		return o.ItemIDs()
	}
	var ids []uint
	seen := map[uint]bool{}
	for _, l := range o.Lines {
		if l.ItemKind == "product" || l.UnitPriceCents <= 0 || seen[l.ItemID] {
			continue
		}
		seen[l.ItemID] = true
		ids = append(ids, l.ItemID)
	}
	return ids
}

// ItemIDs lists the catalog items the order pays for.
func (o Order) ItemIDs() []uint {
	if len(o.Lines) > 0 {
		ids := make([]uint, 0, len(o.Lines))
		seen := map[uint]bool{}
		for _, l := range o.Lines {
			if !seen[l.ItemID] {
				seen[l.ItemID] = true
				ids = append(ids, l.ItemID)
			}
		}
		return ids
	}
	if o.ItemID != nil {
		return []uint{*o.ItemID}
	}
	return nil
}

var orderTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// allowedFrom lists the statuses an order may move to `to` from.
func allowedFrom(to Status) []Status {
	var from []Status
	for f, targets := range orderTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, f)
			}
		}
	}
	return from
}
