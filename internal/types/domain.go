package types

import "time"

// User represents one authenticated account. The row is created on the
// first successful authentication (the identity provider is the source of
// truth for credentials; this table only mirrors billing and usage state).
type User struct {
	ID                   string             `json:"user_id"`
	Email                string             `json:"email,omitempty"`
	BillingCustomerID    string             `json:"billing_customer_id,omitempty"`
	SubscriptionStatus   SubscriptionStatus `json:"subscription_status"`
	TrackerCount         int                `json:"tracker_count"`
	CheckCount           int                `json:"check_count"`
	LastCounterResetDate *time.Time         `json:"last_counter_reset_date,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// Tracker is one user-defined monitor: a target URL paired with a
// natural-language condition and a check interval.
//
// URL is stored as free text. It is deliberately not validated as a
// well-formed URL here; the monitoring worker owns that concern.
type Tracker struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Name          string        `json:"name"`
	URL           string        `json:"url"`
	Prompt        string        `json:"prompt"`
	CheckInterval CheckInterval `json:"check_interval"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// PlanLimits is the resolved set of limits applicable to a user at a point
// in time, derived from their active subscription.
type PlanLimits struct {
	MaxTrackers    int `json:"max_trackers"`
	ChecksPerMonth int `json:"checks_per_month"`
}

// Plan is one subscription tier definition. The catalog is built once at
// process start and is immutable thereafter.
type Plan struct {
	Tier    PlanTier   `json:"tier"`
	Limits  PlanLimits `json:"limits"`
	PriceID string     `json:"-"` // payment provider price id; empty for Free
}
