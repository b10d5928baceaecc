package access

import "membership-portal/internal/domain/plans"

// Decision is the outcome of an access check, ordered denied < preview < full.
type Decision string

const (
	Denied  Decision = "denied"
	Preview Decision = "preview"
	Full    Decision = "full"
)

func (d Decision) Rank() int {
	switch d {
	case Full:
		return 2
	case Preview:
		return 1
	default:
		return 0
	}
}

// Subject is who is asking. The zero value is an anonymous visitor.
type Subject struct {
	UserID        uint
	Authenticated bool
	Tier          plans.Tier
}

func Anonymous() Subject {
	return Subject{Tier: plans.TierFree}
}
