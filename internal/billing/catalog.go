// Package billing provides the plan catalog and entitlement resolution logic.
package billing

import "scoutpup/internal/types"

// planDefaults defines the hardcoded limits for each tier. Price IDs are
// environment-specific and are bound at catalog construction from config.
//
//	| Plan  | Trackers | Checks/Month |
//	|-------|----------|--------------|
//	| Free  | 1        | 30           |
//	| Pro   | 5        | 2,000        |
//	| Ultra | 10       | 5,000        |
var planDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanFree:  {MaxTrackers: 1, ChecksPerMonth: 30},
	types.PlanPro:   {MaxTrackers: 5, ChecksPerMonth: 2000},
	types.PlanUltra: {MaxTrackers: 10, ChecksPerMonth: 5000},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[types.PlanFree]

// Catalog is the authoritative mapping between payment provider price IDs and
// plan tiers. It is built once at process start from configuration and is
// immutable thereafter.
type Catalog struct {
	plans   map[types.PlanTier]types.Plan
	byPrice map[string]types.Plan
}

// NewCatalog constructs the plan catalog. proPriceID and ultraPriceID are the
// payment provider price identifiers for the paid tiers; the Free tier has no
// price and is the fallback for every unrecognized price ID.
func NewCatalog(proPriceID, ultraPriceID string) *Catalog {
	plans := map[types.PlanTier]types.Plan{
		types.PlanFree:  {Tier: types.PlanFree, Limits: planDefaults[types.PlanFree]},
		types.PlanPro:   {Tier: types.PlanPro, Limits: planDefaults[types.PlanPro], PriceID: proPriceID},
		types.PlanUltra: {Tier: types.PlanUltra, Limits: planDefaults[types.PlanUltra], PriceID: ultraPriceID},
	}

	byPrice := make(map[string]types.Plan, 2)
	for _, p := range plans {
		if p.PriceID != "" {
			byPrice[p.PriceID] = p
		}
	}

	return &Catalog{plans: plans, byPrice: byPrice}
}

// PlanForPrice returns the plan whose price ID matches, and whether a match
// was found. Unrecognized price IDs return the Free plan and false; callers
// decide whether that deserves a warning log.
func (c *Catalog) PlanForPrice(priceID string) (types.Plan, bool) {
	if p, ok := c.byPrice[priceID]; ok {
		return p, true
	}
	return c.plans[types.PlanFree], false
}

// FreeLimits returns the Free tier limits, the universal fail-safe default.
func FreeLimits() types.PlanLimits {
	return freeLimits
}
