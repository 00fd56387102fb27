package types

// SubscriptionStatus is the local mirror of the payment provider's
// subscription state for a user.
type SubscriptionStatus string

const (
	// SubStatusNone is the state of a user who has never completed checkout.
	SubStatusNone     SubscriptionStatus = "none"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// PlanTier identifies a subscription tier.
type PlanTier string

const (
	PlanFree  PlanTier = "free"
	PlanPro   PlanTier = "pro"
	PlanUltra PlanTier = "ultra"
)

// CheckInterval defines how often a tracker's target page is checked.
// The values are stored verbatim; the monitoring worker interprets them.
type CheckInterval string

const (
	IntervalHourly CheckInterval = "1 hour"
	IntervalDaily  CheckInterval = "1 day"
	IntervalWeekly CheckInterval = "1 week"
)

// ValidIntervals lists every accepted check interval, in ascending frequency
// order. Used by request validation.
var ValidIntervals = []CheckInterval{IntervalHourly, IntervalDaily, IntervalWeekly}

// IsValidInterval reports whether the given value is an accepted check interval.
func IsValidInterval(v CheckInterval) bool {
	for _, iv := range ValidIntervals {
		if v == iv {
			return true
		}
	}
	return false
}
