package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scoutpup/internal/core"
	"scoutpup/internal/external"
	"scoutpup/internal/types"
)

// freePlanMessage is the exact "error" value for a portal request from a user
// with no billing customer. The dashboard matches on it to route the user to
// the pricing page instead.
const freePlanMessage = "free_plan"

// BillingSessions creates hosted checkout and portal sessions with the
// payment provider.
type BillingSessions interface {
	CreateCheckoutSession(ctx context.Context, p external.CheckoutSessionParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID string, returnURL string) (string, error)
}

// UserReader is the read-only slice of the user repository the billing
// handler needs.
type UserReader interface {
	GetByID(ctx context.Context, userID string) (*types.User, error)
}

// PriceCatalog answers whether a price ID belongs to a known paid plan.
type PriceCatalog interface {
	PlanForPrice(priceID string) (types.Plan, bool)
}

// BillingHandler handles the authenticated billing endpoints: starting a
// checkout for an upgrade and opening the customer portal for an existing
// subscriber.
type BillingHandler struct {
	sessions     BillingSessions
	users        UserReader
	catalog      PriceCatalog
	validator    *core.Validator
	dashboardURL string
	logger       *slog.Logger
}

// NewBillingHandler creates a new BillingHandler. dashboardURL is where the
// provider redirects the user back to after checkout or portal.
func NewBillingHandler(
	sessions BillingSessions,
	users UserReader,
	catalog PriceCatalog,
	validator *core.Validator,
	dashboardURL string,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		sessions:     sessions,
		users:        users,
		catalog:      catalog,
		validator:    validator,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// RegisterRoutes mounts the billing session endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/create-checkout", h.CreateCheckout)
	r.Post("/billing/create-portal", h.CreatePortal)
}

// CreateCheckoutRequest is the request body for POST /billing/create-checkout.
// Field names match the published contract (camelCase).
type CreateCheckoutRequest struct {
	PriceID    string `json:"priceId" validate:"required"`
	Mode       string `json:"mode" validate:"required,oneof=subscription payment"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

// sessionURLResponse carries the provider-hosted redirect URL back to the
// client.
type sessionURLResponse struct {
	URL string `json:"url"`
}

// CreateCheckout handles POST /billing/create-checkout. It creates a hosted
// checkout session for the requested price and returns its redirect URL. The
// user ID rides along as client_reference_id so the completed webhook event
// can be linked back to the account.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, known := h.catalog.PlanForPrice(req.PriceID); !known {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			"invalid value for field: priceId", nil,
			map[string]any{"field": "priceId"}))
		return
	}

	sessionURL, err := h.sessions.CreateCheckoutSession(r.Context(), external.CheckoutSessionParams{
		PriceID:           req.PriceID,
		Mode:              req.Mode,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		ClientReferenceID: actor.ID,
		CustomerEmail:     actor.Email,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create checkout session",
			"user_id", actor.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created", "user_id", actor.ID)
	// The url rides at the top level, not inside the data envelope.
	core.JSON(w, r, http.StatusOK, sessionURLResponse{URL: sessionURL})
}

// CreatePortal handles POST /billing/create-portal. It opens a billing portal
// session for the user's existing customer record. A user who never completed
// checkout has no customer record; that is rejected with 400 "free_plan"
// rather than creating a customer on the fly.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if user.BillingCustomerID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeBillingFreePlan, freePlanMessage, nil))
		return
	}

	sessionURL, err := h.sessions.CreatePortalSession(r.Context(), user.BillingCustomerID, h.dashboardURL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create portal session",
			"user_id", actor.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, sessionURLResponse{URL: sessionURL})
}
