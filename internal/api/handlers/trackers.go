package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scoutpup/internal/core"
	"scoutpup/internal/trackers"
	"scoutpup/internal/types"
)

// TrackerService is the tracker operations surface the handler depends on.
type TrackerService interface {
	Create(ctx context.Context, userID string, in trackers.CreateInput) (*types.Tracker, error)
	List(ctx context.Context, userID string) ([]*types.Tracker, error)
	Update(ctx context.Context, userID string, in trackers.UpdateInput) (*types.Tracker, error)
	Delete(ctx context.Context, userID string, id string) error
}

// TrackerMetrics counts tracker lifecycle operations by outcome. May be nil.
type TrackerMetrics interface {
	RecordTrackerOperation(operation, outcome string)
}

// TrackersHandler handles the tracker CRUD endpoints. All routes require an
// authenticated actor in the request context.
type TrackersHandler struct {
	service   TrackerService
	validator *core.Validator
	metrics   TrackerMetrics
	logger    *slog.Logger
}

// NewTrackersHandler creates a new TrackersHandler.
func NewTrackersHandler(service TrackerService, validator *core.Validator, metrics TrackerMetrics, logger *slog.Logger) *TrackersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackersHandler{
		service:   service,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterRoutes mounts the tracker endpoints.
func (h *TrackersHandler) RegisterRoutes(r chi.Router) {
	r.Post("/trackers", h.Create)
	r.Get("/trackers", h.List)
	r.Put("/trackers", h.Update)
	r.Delete("/trackers", h.Delete)
}

// CreateTrackerRequest is the request body for POST /trackers. The interval
// field is published as "interval"; the stored column and the Tracker response
// field are "check_interval".
type CreateTrackerRequest struct {
	Name          string `json:"name" validate:"required,max=200"`
	URL           string `json:"url" validate:"required,max=2048"`
	Prompt        string `json:"prompt" validate:"required,max=2000"`
	CheckInterval string `json:"interval" validate:"required"`
}

// UpdateTrackerRequest is the request body for PUT /trackers. The tracker to
// modify is addressed by its id in the body; all mutable fields are replaced.
type UpdateTrackerRequest struct {
	ID            string `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required,max=200"`
	URL           string `json:"url" validate:"required,max=2048"`
	Prompt        string `json:"prompt" validate:"required,max=2000"`
	CheckInterval string `json:"interval" validate:"required"`
}

// DeleteTrackerRequest is the request body for DELETE /trackers.
type DeleteTrackerRequest struct {
	ID string `json:"id" validate:"required"`
}

// Create handles POST /trackers. Responds 201 with the created tracker, or
// 403 when the user's plan limit is reached.
func (h *TrackersHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CreateTrackerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validateInterval(req.CheckInterval); err != nil {
		core.Error(w, r, err)
		return
	}

	tracker, err := h.service.Create(r.Context(), actor.ID, trackers.CreateInput{
		Name:          req.Name,
		URL:           req.URL,
		Prompt:        req.Prompt,
		CheckInterval: types.CheckInterval(req.CheckInterval),
	})
	if err != nil {
		h.record("create", outcomeForError(err, types.ErrCodeLimitTrackers, "limit_exceeded"))
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "tracker created",
		"tracker_id", tracker.ID,
		"user_id", actor.ID,
	)
	h.record("create", "ok")
	// The created tracker is returned bare, not in the data envelope.
	core.JSON(w, r, http.StatusCreated, tracker)
}

// List handles GET /trackers. Responds 200 with the user's trackers, newest
// first; an empty list serializes as [].
func (h *TrackersHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	list, err := h.service.List(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, list)
}

// Update handles PUT /trackers. Responds 200 with the updated tracker, or 404
// when the tracker does not exist or belongs to another user.
func (h *TrackersHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req UpdateTrackerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := validateInterval(req.CheckInterval); err != nil {
		core.Error(w, r, err)
		return
	}

	tracker, err := h.service.Update(r.Context(), actor.ID, trackers.UpdateInput{
		ID:            req.ID,
		Name:          req.Name,
		URL:           req.URL,
		Prompt:        req.Prompt,
		CheckInterval: types.CheckInterval(req.CheckInterval),
	})
	if err != nil {
		h.record("update", "error")
		core.Error(w, r, err)
		return
	}

	h.record("update", "ok")
	core.Data(w, r, http.StatusOK, tracker)
}

// Delete handles DELETE /trackers. Responds 200 {"success":true}, or 404 when
// the tracker does not exist or belongs to another user.
func (h *TrackersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req DeleteTrackerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), actor.ID, req.ID); err != nil {
		h.record("delete", "error")
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "tracker deleted",
		"tracker_id", req.ID,
		"user_id", actor.ID,
	)
	h.record("delete", "ok")
	core.Success(w, r, http.StatusOK)
}

func (h *TrackersHandler) record(operation, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordTrackerOperation(operation, outcome)
	}
}

// validateInterval checks the interval against the accepted set. Done outside
// the struct validator so the error names the accepted values.
func validateInterval(v string) error {
	if types.IsValidInterval(types.CheckInterval(v)) {
		return nil
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
		"invalid value for field: interval", nil,
		map[string]any{
			"field":    "interval",
			"expected": types.ValidIntervals,
		})
}

// outcomeForError returns special when the error carries the given code, and
// "error" otherwise.
func outcomeForError(err error, code types.ErrorCode, special string) string {
	if appErr, ok := err.(*types.AppError); ok && appErr.Code == code {
		return special
	}
	return "error"
}
