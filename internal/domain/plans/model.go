package plans

// Plan is a recurring membership price synced from Stripe. Buying it moves
// the member to Tier.
type Plan struct {
	ID              uint `gorm:"primaryKey"`
	Name            string
	PriceCents      int64
	Currency        string
	StripePriceID   string `gorm:"column:stripe_price_id;not null;uniqueIndex:idx_plans_stripe_price_id"`
	StripeProductID string `gorm:"column:stripe_product_id;index"`
	Interval        string
	Tier            Tier `gorm:"column:tier;type:varchar(20)"`
}
