package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/plans"

	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ByID(ctx context.Context, id uint) (*User, error) {
	return s.first(ctx, "users.ByID", "id = ?", id)
}

func (s *Store) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.first(ctx, "users.ByEmail", "email = ?", NormalizeEmail(email))
}

func (s *Store) ByStripeCustomer(ctx context.Context, customerID string) (*User, error) {
	return s.first(ctx, "users.ByStripeCustomer", "stripe_customer_id = ?", customerID)
}

func (s *Store) BySubscription(ctx context.Context, subscriptionID string) (*User, error) {
	return s.first(ctx, "users.BySubscription", "subscription_id = ?", subscriptionID)
}

func (s *Store) first(ctx context.Context, op, query string, args ...any) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).
		Preload("Plan").
		Preload("PendingPlan").
		Where(query, args...).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// SetTier is the admin override of a member's tier.
func (s *Store) SetTier(ctx context.Context, id uint, tier plans.Tier) (*User, error) {
	if !tier.Valid() {
		return nil, apperr.Field("tier", "unknown tier")
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"tier": tier, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, fmt.Errorf("users.SetTier: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("User not found")
	}
	return s.ByID(ctx, id)
}

// SetDeactivated blocks or restores sign-in. Deactivated accounts keep
// their data and count as free.
func (s *Store) SetDeactivated(ctx context.Context, id uint, deactivated bool, now time.Time) (*User, error) {
	var at *time.Time
	if deactivated {
		at = &now
	}
	res := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"deactivated_at": at, "updated_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("users.SetDeactivated: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("User not found")
	}
	return s.ByID(ctx, id)
}

// ApplyMembership stores the state of a member's Stripe subscription and the
// tier it buys. A nil plan with a non-granting status drops them to free.
func (s *Store) ApplyMembership(ctx context.Context, id uint, m Membership) error {
	updates := map[string]interface{}{
		"stripe_subscription_status": m.Status,
		"updated_at":                 time.Now(),
	}
	if m.SubscriptionID != "" {
		updates["subscription_id"] = m.SubscriptionID
	}
	if m.CustomerID != "" {
		updates["stripe_customer_id"] = m.CustomerID
	}
	if m.PeriodEnd != nil {
		updates["current_period_end"] = *m.PeriodEnd
		updates["subscription_end"] = *m.PeriodEnd
	}
	if m.PeriodStart != nil {
		updates["subscription_start"] = *m.PeriodStart
	}
	if m.Plan != nil {
		updates["plan_id"] = m.Plan.ID
	}
	if m.ClearPending {
		updates["pending_plan_id"] = nil
		updates["pending_plan_start_date"] = nil
		updates["stripe_schedule_id"] = nil
	}
	updates["tier"] = m.Tier

	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("users.ApplyMembership: %w", err)
	}
	return nil
}

// Membership is a snapshot of a Stripe subscription applied to a user.
type Membership struct {
	SubscriptionID string
	CustomerID     string
	Status         string
	Plan           *plans.Plan
	Tier           plans.Tier
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	ClearPending   bool
}

type ListFilter struct {
	Query string
	Tier  plans.Tier
	Limit int
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]User, error) {
	q := s.db.WithContext(ctx).Preload("Plan").Order("created_at DESC, id DESC")
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ? OR LOWER(lastname) LIKE ?", like, like, like)
	}
	if f.Tier != "" {
		q = q.Where("tier = ?", f.Tier)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	var out []User
	if err := q.Limit(f.Limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("users.List: %w", err)
	}
	return out, nil
}

// CountByTier returns the number of active accounts on each tier.
func (s *Store) CountByTier(ctx context.Context) (map[plans.Tier]int64, error) {
	var rows []struct {
		Tier  plans.Tier
		Count int64
	}
	if err := s.db.WithContext(ctx).Model(&User{}).
		Select("tier, COUNT(*) AS count").
		Where("deactivated_at IS NULL").
		Group("tier").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("users.CountByTier: %w", err)
	}
	out := make(map[plans.Tier]int64, len(plans.Tiers()))
	for _, t := range plans.Tiers() {
		out[t] = 0
	}
	for _, r := range rows {
		out[plans.ParseTier(string(r.Tier))] += r.Count
	}
	return out, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
