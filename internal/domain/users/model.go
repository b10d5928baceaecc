package users

import (
	"time"

	"membership-portal/internal/domain/plans"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is never hard-deleted; DeactivatedAt marks an account that can no
// longer sign in.
type User struct {
	ID           uint `gorm:"primaryKey"`
	Name         string
	Lastname     string
	Tel          string
	Email        string  `gorm:"not null;uniqueIndex:idx_users_email"`
	Password     *string `gorm:""`
	AuthProvider string  `gorm:"type:varchar(20);not null;default:'local'"`
	GoogleSub    *string `gorm:"uniqueIndex:idx_users_google_sub"`
	Role         string
	IsVerified   bool

	Tier plans.Tier `gorm:"type:varchar(20);not null;default:'free'"`

	PlanID *uint
	Plan   *plans.Plan

	SubscriptionStart *time.Time
	SubscriptionEnd   *time.Time
	SubscriptionId    *string `gorm:"column:subscription_id;uniqueIndex:idx_users_subscription_id"`
	StripeCustomerID  *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_users_stripe_customer_id"`

	PendingPlan          *plans.Plan `gorm:"foreignKey:PendingPlanID"`
	PendingPlanID        *uint       `gorm:"column:pending_plan_id"`
	PendingPlanStartDate *time.Time  `gorm:"column:pending_plan_start_date"`
	StripeScheduleID     *string     `gorm:"column:stripe_schedule_id"`
	CurrentPeriodEnd     *time.Time  `gorm:"column:current_period_end"`

	StripeSubscriptionStatus *string `gorm:"column:stripe_subscription_status"`

	DeactivatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveTier is the tier used for access checks. Unknown stored values and
// deactivated accounts fall back to free.
func (u User) EffectiveTier() plans.Tier {
	if u.DeactivatedAt != nil {
		return plans.TierFree
	}
	return plans.ParseTier(string(u.Tier))
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
