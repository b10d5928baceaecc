package access

import (
	"time"

	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/registrations"
)

// CanAccess decides from tiers alone. An unknown subject tier counts as free
// and an unknown item tier as the top tier, so bad data only ever closes.
func CanAccess(s Subject, item content.Item) Decision {
	subjectTier := plans.ParseTier(string(s.Tier))
	if !s.Authenticated {
		subjectTier = plans.TierFree
	}
	if subjectTier.AtLeast(requiredTier(item)) {
		return Full
	}
	if item.PreviewDuration > 0 {
		return Preview
	}
	return Denied
}

// Evaluate is CanAccess plus purchased entitlements: an active registration
// for the item gives full access whatever the tier.
func Evaluate(now time.Time, s Subject, item content.Item, grants []registrations.Registration) Decision {
	if s.Authenticated {
		for _, g := range grants {
			if g.UserID == s.UserID && g.ItemID == item.ID && g.ActiveAt(now) {
				return Full
			}
		}
	}
	return CanAccess(s, item)
}

// Redirect is where the website should send someone who got d.
func Redirect(s Subject, d Decision) string {
	if d == Full {
		return ""
	}
	if !s.Authenticated {
		return "/signup"
	}
	return "/membership"
}

func requiredTier(item content.Item) plans.Tier {
	if item.AccessLevel == "" {
		return plans.TierFree
	}
	t, ok := plans.LookupTier(string(item.AccessLevel))
	if !ok {
		return plans.TierPragyaniPlus
	}
	return t
}
