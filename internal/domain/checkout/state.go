package checkout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"membership-portal/internal/apperr"
	"membership-portal/internal/domain/billing"
	"membership-portal/internal/domain/registrations"
)

// State is where a checkout attempt stands.
//
//	collecting -> validating -> submitting -> succeeded
//	                                       -> failed -> collecting
type State string

const (
	Collecting State = "collecting"
	Validating State = "validating"
	Submitting State = "submitting"
	Succeeded  State = "succeeded"
	Failed     State = "failed"
)

var stateTransitions = map[State][]State{
	Collecting: {Validating},
	Validating: {Collecting, Submitting},
	Submitting: {Succeeded, Failed},
	Failed:     {Collecting},
}

func CanTransition(from, to State) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Seed is what the checkout page is opened with.
type Seed struct {
	Category    billing.Category         `json:"category"`
	AmountCents int64                    `json:"amount_cents"`
	AccessType  registrations.AccessType `json:"access_type"`
	Item        string                   `json:"item,omitempty"`
}

const (
	minDonationCents = 100
	maxDonationCents = 10_000_000
)

// ParseSeed reads the query parameters the website links to checkout with.
// amount is in currency units ("25" or "25.50").
func ParseSeed(amount, category, accessType, item string) (Seed, error) {
	fields := map[string]string{}
	var s Seed

	cat, ok := billing.ParseCategory(strings.ToLower(strings.TrimSpace(category)))
	if !ok {
		fields["category"] = "must be one of donation, retreat, course, teaching, cart"
	}
	s.Category = cat

	at, ok := registrations.ParseAccessType(strings.ToLower(strings.TrimSpace(accessType)))
	if !ok {
		fields["accessType"] = "must be lifetime or limited"
	}
	s.AccessType = at

	if amount = strings.TrimSpace(amount); amount != "" {
		cents, err := ParseAmount(amount)
		if err != nil {
			fields["amount"] = err.Error()
		}
		s.AmountCents = cents
	}

	s.Item = strings.TrimSpace(item)
	switch s.Category {
	case billing.CategoryRetreat, billing.CategoryCourse, billing.CategoryTeaching:
		if s.Item == "" {
			fields["item"] = "is required"
		}
	case billing.CategoryDonation:
		if _, bad := fields["amount"]; !bad && (s.AmountCents < minDonationCents || s.AmountCents > maxDonationCents) {
			fields["amount"] = fmt.Sprintf("must be between %d and %d", minDonationCents/100, maxDonationCents/100)
		}
	}

	if len(fields) > 0 {
		return s, apperr.Validation(fields)
	}
	return s, nil
}

// amountPattern is a plain decimal amount. Exponents, hex floats and signs
// are refused.
var amountPattern = regexp.MustCompile(`^(\d{1,12})(?:\.(\d{1,2}))?$`)

// ParseAmount converts a decimal currency amount to cents.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if _, frac, ok := strings.Cut(s, "."); ok && len(frac) > 2 {
		return 0, fmt.Errorf("must have at most two decimals")
	}
	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("must be a positive amount")
	}
	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be a positive amount")
	}
	var cents int64
	if frac := m[2]; frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}
	return whole*100 + cents, nil
}
