package users

import (
	"time"

	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/registrations"
	"membership-portal/internal/domain/users"
	"membership-portal/internal/infra/stripe"
)

func BuildPlanDTO(p *plans.Plan) *PlanDTO {
	if p == nil {
		return nil
	}
	return &PlanDTO{
		ID:            p.ID,
		Name:          p.Name,
		Tier:          string(plans.PlanTier(p)),
		Interval:      p.Interval,
		PriceCents:    p.PriceCents,
		Currency:      p.Currency,
		StripePriceID: p.StripePriceID,
	}
}

func BuildSubscriptionDTO(u users.User) *SubscriptionDTO {
	if u.SubscriptionId == nil || *u.SubscriptionId == "" {
		return nil
	}
	return &SubscriptionDTO{
		Status:               stripe.NormalizeStatus(u.StripeSubscriptionStatus),
		StartsAt:             u.SubscriptionStart,
		CurrentPeriodEnd:     u.CurrentPeriodEnd,
		StripeSubscriptionID: u.SubscriptionId,
		StripeScheduleID:     u.StripeScheduleID,
	}
}

func BuildPendingChangeDTO(u users.User) *PendingChangeDTO {
	if u.PendingPlanID == nil || u.PendingPlan == nil || u.PendingPlanStartDate == nil {
		return nil
	}
	return &PendingChangeDTO{
		EffectiveAt: u.PendingPlanStartDate,
		Plan: &PlanLiteDTO{
			Name:       u.PendingPlan.Name,
			Tier:       string(plans.PlanTier(u.PendingPlan)),
			Interval:   u.PendingPlan.Interval,
			PriceCents: u.PendingPlan.PriceCents,
		},
	}
}

// activeMember mirrors the membership guard: a live subscription whose
// paid period has not run out.
func activeMember(now time.Time, u users.User) bool {
	if u.SubscriptionId == nil || *u.SubscriptionId == "" {
		return false
	}
	if !stripe.GrantsMembership(stripe.NormalizeStatus(u.StripeSubscriptionStatus)) {
		return false
	}
	return u.SubscriptionEnd == nil || u.SubscriptionEnd.After(now)
}

// BuildRegistrationDTOs keeps only grants that give access at now.
func BuildRegistrationDTOs(now time.Time, regs []registrations.Registration) []RegistrationDTO {
	out := make([]RegistrationDTO, 0, len(regs))
	for _, r := range regs {
		if !r.ActiveAt(now) {
			continue
		}
		dto := RegistrationDTO{
			ID:              r.ID,
			ItemID:          r.ItemID,
			AccessType:      string(r.AccessType),
			AccessExpiresAt: r.AccessExpiresAt,
			Status:          string(r.Status),
		}
		if r.Item != nil {
			dto.ItemSlug = r.Item.Slug
			dto.ItemTitle = r.Item.Title
		}
		out = append(out, dto)
	}
	return out
}
