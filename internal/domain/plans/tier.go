package plans

import "strings"

// Tier is a membership level. Tiers are totally ordered; every comparison
// between tiers goes through Rank / AtLeast.
type Tier string

// Tier constants (single source of truth)
const (
	TierFree         Tier = "free"
	TierGyani        Tier = "gyani"
	TierPragyani     Tier = "pragyani"
	TierPragyaniPlus Tier = "pragyani_plus"
)

var tierRank = map[Tier]int{
	TierFree:         0,
	TierGyani:        1,
	TierPragyani:     2,
	TierPragyaniPlus: 3,
}

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierFree, TierGyani, TierPragyani, TierPragyaniPlus}
}

// ParseTier normalizes s into a Tier. Unknown or empty values map to the
// lowest tier so a bad value can never unlock anything.
func ParseTier(s string) Tier {
	if t, ok := LookupTier(s); ok {
		return t
	}
	return TierFree
}

// LookupTier normalizes s and reports whether it names a known tier.
func LookupTier(s string) (Tier, bool) {
	t := Tier(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	_, ok := tierRank[t]
	return t, ok
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the position of t in the ordering. Unknown tiers rank as free.
func (t Tier) Rank() int {
	return tierRank[ParseTier(string(t))]
}

// AtLeast reports whether t is the same as or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// Compare returns -1, 0 or 1 like strings.Compare, using tier order.
func (t Tier) Compare(other Tier) int {
	switch a, b := t.Rank(), other.Rank(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t Tier) String() string { return string(t) }

// PlanTier returns the effective tier for a plan.
// Priority:
// 1. Explicit Tier stored in DB
// 2. Fallback inference by price (legacy plans synced before tiers were tagged)
func PlanTier(p *Plan) Tier {
	if p == nil {
		return TierFree
	}

	if t, ok := LookupTier(string(p.Tier)); ok {
		return t
	}

	return inferTierFromPrice(p.PriceCents)
}

// inferTierFromPrice exists ONLY as a backward-compatibility fallback.
func inferTierFromPrice(priceCents int64) Tier {
	switch {
	case priceCents >= 10000:
		return TierPragyaniPlus
	case priceCents >= 5000:
		return TierPragyani
	case priceCents > 0:
		return TierGyani
	default:
		return TierFree
	}
}
