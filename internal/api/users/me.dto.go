package users

import "time"

type MeResponse struct {
	User    UserDTO    `json:"user"`
	Billing BillingDTO `json:"billing"`
	Access  AccessDTO  `json:"access"`
}

/* ---------- USER ---------- */

type UserDTO struct {
	ID           uint    `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Lastname     string  `json:"lastname"`
	Tel          *string `json:"tel"`
	Role         string  `json:"role"`
	IsVerified   bool    `json:"is_verified"`
	AuthProvider string  `json:"auth_provider"`
}

/* ---------- BILLING ---------- */

type BillingDTO struct {
	Plan          *PlanDTO          `json:"plan"`
	Subscription  *SubscriptionDTO  `json:"subscription"`
	PendingChange *PendingChangeDTO `json:"pending_change"`
}

type PlanDTO struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Tier          string `json:"tier"`
	Interval      string `json:"interval"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
	StripePriceID string `json:"stripe_price_id"`
}

type SubscriptionDTO struct {
	Status               string     `json:"status"`
	StartsAt             *time.Time `json:"starts_at"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id"`
	StripeScheduleID     *string    `json:"stripe_schedule_id"`
}

type PendingChangeDTO struct {
	EffectiveAt *time.Time   `json:"effective_at"`
	Plan        *PlanLiteDTO `json:"plan"`
}

type PlanLiteDTO struct {
	Name       string `json:"name"`
	Tier       string `json:"tier"`
	Interval   string `json:"interval"`
	PriceCents int64  `json:"price_cents"`
}

/* ---------- ACCESS ---------- */

type AccessDTO struct {
	Tier          string            `json:"tier"`
	ActiveMember  bool              `json:"active_member"`
	Registrations []RegistrationDTO `json:"registrations"`
}

type RegistrationDTO struct {
	ID              uint       `json:"id"`
	ItemID          uint       `json:"item_id"`
	ItemSlug        string     `json:"item_slug,omitempty"`
	ItemTitle       string     `json:"item_title,omitempty"`
	AccessType      string     `json:"access_type"`
	AccessExpiresAt *time.Time `json:"access_expires_at"`
	Status          string     `json:"status"`
}
