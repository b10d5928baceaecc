package access

import (
	"testing"
	"time"

	"membership-portal/internal/domain/content"
	"membership-portal/internal/domain/plans"
	"membership-portal/internal/domain/registrations"

	"github.com/stretchr/testify/assert"
)

func member(tier plans.Tier) Subject {
	return Subject{UserID: 7, Authenticated: true, Tier: tier}
}

func TestCanAccess(t *testing.T) {
	gyaniTeaching := content.Item{ID: 1, AccessLevel: plans.TierGyani, PreviewDuration: 30}
	gyaniNoPreview := content.Item{ID: 2, AccessLevel: plans.TierGyani}
	freeTeaching := content.Item{ID: 3, AccessLevel: plans.TierFree}

	tests := []struct {
		name    string
		subject Subject
		item    content.Item
		want    Decision
	}{
		{"anonymous on free item", Anonymous(), freeTeaching, Full},
		{"anonymous on restricted item with preview", Anonymous(), gyaniTeaching, Preview},
		{"anonymous on restricted item without preview", Anonymous(), gyaniNoPreview, Denied},
		{"free member below tier", member(plans.TierFree), gyaniNoPreview, Denied},
		{"exact tier", member(plans.TierGyani), gyaniNoPreview, Full},
		{"higher tier", member(plans.TierPragyaniPlus), gyaniTeaching, Full},
		{"unknown subject tier fails closed", member("gold"), gyaniTeaching, Preview},
		{"anonymous claiming a tier is ignored", Subject{Tier: plans.TierPragyaniPlus}, gyaniNoPreview, Denied},
		{"unknown item tier needs the top tier", member(plans.TierPragyani), content.Item{AccessLevel: "mystery"}, Denied},
		{"unknown item tier still opens to the top tier", member(plans.TierPragyaniPlus), content.Item{AccessLevel: "mystery"}, Full},
		{"empty item tier is free", Anonymous(), content.Item{}, Full},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(tt.subject, tt.item))
		})
	}
}

func TestCanAccessIsMonotonicInTier(t *testing.T) {
	tiers := plans.Tiers()
	for _, itemTier := range tiers {
		for _, preview := range []int{0, 30} {
			item := content.Item{AccessLevel: itemTier, PreviewDuration: preview}
			prev := -1
			for _, userTier := range tiers {
				rank := CanAccess(member(userTier), item).Rank()
				assert.GreaterOrEqual(t, rank, prev, "item=%s preview=%d user=%s", itemTier, preview, userTier)
				prev = rank
			}
		}
	}
}

func TestEvaluateWithRegistrations(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	retreat := content.Item{ID: 10, AccessLevel: plans.TierPragyani}
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name   string
		grants []registrations.Registration
		want   Decision
	}{
		{"no grants", nil, Denied},
		{"lifetime grant", []registrations.Registration{
			{UserID: 7, ItemID: 10, AccessType: registrations.Lifetime, Status: registrations.StatusConfirmed},
		}, Full},
		{"limited grant still valid", []registrations.Registration{
			{UserID: 7, ItemID: 10, AccessType: registrations.Limited, AccessExpiresAt: &future, Status: registrations.StatusConfirmed},
		}, Full},
		{"limited grant expired", []registrations.Registration{
			{UserID: 7, ItemID: 10, AccessType: registrations.Limited, AccessExpiresAt: &past, Status: registrations.StatusConfirmed},
		}, Denied},
		{"cancelled grant", []registrations.Registration{
			{UserID: 7, ItemID: 10, AccessType: registrations.Lifetime, Status: registrations.StatusCancelled},
		}, Denied},
		{"grant for another item", []registrations.Registration{
			{UserID: 7, ItemID: 11, AccessType: registrations.Lifetime, Status: registrations.StatusConfirmed},
		}, Denied},
		{"grant for another user", []registrations.Registration{
			{UserID: 8, ItemID: 10, AccessType: registrations.Lifetime, Status: registrations.StatusConfirmed},
		}, Denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(now, member(plans.TierFree), retreat, tt.grants))
		})
	}
}

func TestRedirect(t *testing.T) {
	assert.Equal(t, "", Redirect(Anonymous(), Full))
	assert.Equal(t, "/signup", Redirect(Anonymous(), Preview))
	assert.Equal(t, "/membership", Redirect(member(plans.TierFree), Denied))
}
