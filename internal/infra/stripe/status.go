package stripe

import "strings"

// NormalizeStatus folds Stripe subscription statuses into the few the
// website distinguishes: active, trialing, past_due, canceled or none.
func NormalizeStatus(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "none"
	}
	switch v := strings.TrimSpace(*s); v {
	case "active", "trialing":
		return v
	case "past_due", "unpaid":
		return "past_due"
	case "canceled", "incomplete_expired":
		return "canceled"
	default:
		return v
	}
}

// GrantsMembership reports whether a subscription in status s should keep
// the member on their paid tier.
func GrantsMembership(s string) bool {
	switch NormalizeStatus(&s) {
	case "active", "trialing", "past_due":
		return true
	}
	return false
}
