package billing

import (
	"context"
	"log/slog"

	"scoutpup/internal/types"
)

// SubscriptionLister is the slice of the payment provider client needed for
// entitlement resolution.
type SubscriptionLister interface {
	// ActiveSubscriptionPriceID returns the price ID of the customer's single
	// active subscription, or "" when the customer has no active subscription.
	ActiveSubscriptionPriceID(ctx context.Context, customerID string) (string, error)
}

// EntitlementResolver determines the plan limits currently applicable to a
// user by consulting the payment provider for their active subscription.
//
// Resolution NEVER fails: any error from the provider, an unlinked customer,
// or an unrecognized price all degrade to the Free tier limits. A paying user
// may be briefly under-served during a provider outage, but a free user can
// never be over-served, and enforcement paths never go down with the provider.
type EntitlementResolver struct {
	catalog *Catalog
	subs    SubscriptionLister
	logger  *slog.Logger
}

// NewEntitlementResolver creates an EntitlementResolver.
func NewEntitlementResolver(catalog *Catalog, subs SubscriptionLister, logger *slog.Logger) *EntitlementResolver {
	return &EntitlementResolver{
		catalog: catalog,
		subs:    subs,
		logger:  logger,
	}
}

// Resolve returns the plan limits for the given billing customer. An empty
// billingCustomerID means the user never completed checkout and is on Free.
func (r *EntitlementResolver) Resolve(ctx context.Context, billingCustomerID string) types.PlanLimits {
	if billingCustomerID == "" {
		return FreeLimits()
	}

	priceID, err := r.subs.ActiveSubscriptionPriceID(ctx, billingCustomerID)
	if err != nil {
		r.logger.WarnContext(ctx, "entitlement lookup failed, falling back to free limits",
			slog.String("billing_customer_id", billingCustomerID),
			slog.String("error", err.Error()),
		)
		return FreeLimits()
	}
	if priceID == "" {
		// No active subscription (expired, canceled, or never subscribed).
		return FreeLimits()
	}

	plan, ok := r.catalog.PlanForPrice(priceID)
	if !ok {
		r.logger.WarnContext(ctx, "active subscription has unrecognized price, falling back to free limits",
			slog.String("billing_customer_id", billingCustomerID),
			slog.String("price_id", priceID),
		)
	}
	return plan.Limits
}
