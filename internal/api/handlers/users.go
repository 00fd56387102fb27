package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scoutpup/internal/core"
	"scoutpup/internal/types"
)

// EntitlementReader resolves the plan limits currently applicable to a user.
type EntitlementReader interface {
	Resolve(ctx context.Context, billingCustomerID string) types.PlanLimits
}

// UsersHandler serves the authenticated user's own account view.
type UsersHandler struct {
	users        UserReader
	entitlements EntitlementReader
	logger       *slog.Logger
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(users UserReader, entitlements EntitlementReader, logger *slog.Logger) *UsersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{
		users:        users,
		entitlements: entitlements,
		logger:       logger,
	}
}

// RegisterRoutes mounts the user endpoints.
func (h *UsersHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// meResponse is the user record plus the resolved plan limits, so the
// dashboard renders usage against the current entitlement in one round trip.
type meResponse struct {
	*types.User
	Limits types.PlanLimits `json:"limits"`
}

// Me handles GET /me. The auth middleware upserted the user row when it
// resolved the token, so the lookup only misses if the row was deleted
// mid-request.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
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

	limits := h.entitlements.Resolve(r.Context(), user.BillingCustomerID)

	core.Data(w, r, http.StatusOK, meResponse{User: user, Limits: limits})
}
