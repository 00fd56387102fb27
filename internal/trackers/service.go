// Package trackers implements the tracker lifecycle: creation gated by plan
// limits, listing, updates, and deletion with counter bookkeeping.
package trackers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"scoutpup/internal/types"
)

// limitExceededMessage is the exact client-facing message for a rejected
// create. The dashboard matches on it to show the upgrade prompt.
const limitExceededMessage = "Tracker limit reached. Please upgrade your plan."

// UserStore is the slice of the user repository the service needs.
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*types.User, error)
	IncrementTrackerCountIfBelow(ctx context.Context, userID string, limit int) (bool, error)
	DecrementTrackerCount(ctx context.Context, userID string) error
}

// TrackerStore is the slice of the tracker repository the service needs.
type TrackerStore interface {
	Create(ctx context.Context, t *types.Tracker) error
	ListByUser(ctx context.Context, userID string) ([]*types.Tracker, error)
	Update(ctx context.Context, t *types.Tracker) (*types.Tracker, error)
	Delete(ctx context.Context, id string, userID string) error
}

// EntitlementSource resolves the plan limits currently applicable to a user.
type EntitlementSource interface {
	Resolve(ctx context.Context, billingCustomerID string) types.PlanLimits
}

// Service orchestrates tracker operations against the stores and the
// entitlement source.
type Service struct {
	users        UserStore
	trackers     TrackerStore
	entitlements EntitlementSource
	logger       *slog.Logger
}

// NewService creates a tracker Service.
func NewService(users UserStore, trackers TrackerStore, entitlements EntitlementSource, logger *slog.Logger) *Service {
	return &Service{
		users:        users,
		trackers:     trackers,
		entitlements: entitlements,
		logger:       logger,
	}
}

// CreateInput holds the validated fields for a new tracker.
type CreateInput struct {
	Name          string
	URL           string
	Prompt        string
	CheckInterval types.CheckInterval
}

// Create makes a new tracker for the user, enforcing the plan's tracker
// limit.
//
// The limit gate is the conditional counter increment: the slot is reserved
// atomically before the tracker row is inserted, so concurrent creates cannot
// overshoot the limit. If the insert fails after the slot was reserved, the
// counter is decremented again as compensation.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*types.Tracker, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := s.entitlements.Resolve(ctx, user.BillingCustomerID)

	ok, err := s.users.IncrementTrackerCountIfBelow(ctx, userID, limits.MaxTrackers)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, types.NewAppError(types.ErrCodeLimitTrackers, limitExceededMessage, nil)
	}

	t := &types.Tracker{
		ID:            "trk_" + uuid.NewString(),
		UserID:        userID,
		Name:          in.Name,
		URL:           in.URL,
		Prompt:        in.Prompt,
		CheckInterval: in.CheckInterval,
	}

	if err := s.trackers.Create(ctx, t); err != nil {
		// Release the reserved slot. A failure here only leaves the counter
		// too high, which is the safe direction (under-admits, never over).
		if decErr := s.users.DecrementTrackerCount(ctx, userID); decErr != nil {
			s.logger.ErrorContext(ctx, "failed to release tracker slot after insert failure",
				slog.String("user_id", userID),
				slog.String("error", decErr.Error()),
			)
		}
		return nil, err
	}

	return t, nil
}

// List returns all trackers owned by the user, newest first. A user with no
// trackers gets an empty slice, not nil, so the response serializes as [].
func (s *Service) List(ctx context.Context, userID string) ([]*types.Tracker, error) {
	list, err := s.trackers.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*types.Tracker{}
	}
	return list, nil
}

// UpdateInput holds the validated fields for a tracker update. All fields are
// written; the API contract is full replacement of the mutable fields.
type UpdateInput struct {
	ID            string
	Name          string
	URL           string
	Prompt        string
	CheckInterval types.CheckInterval
}

// Update applies changes to an existing tracker owned by the user and returns
// the updated row. Updating never consults plan limits: a downgrade strands
// existing trackers but does not block editing them.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*types.Tracker, error) {
	return s.trackers.Update(ctx, &types.Tracker{
		ID:            in.ID,
		UserID:        userID,
		Name:          in.Name,
		URL:           in.URL,
		Prompt:        in.Prompt,
		CheckInterval: in.CheckInterval,
	})
}

// Delete removes a tracker owned by the user and releases its counter slot.
// The decrement happens only after a confirmed delete, so deleting a
// nonexistent tracker never corrupts the count.
func (s *Service) Delete(ctx context.Context, userID string, id string) error {
	if err := s.trackers.Delete(ctx, id, userID); err != nil {
		return err
	}
	if err := s.users.DecrementTrackerCount(ctx, userID); err != nil {
		// The tracker row is gone; a stale high count self-corrects on the
		// next delete and errs toward under-admission.
		s.logger.ErrorContext(ctx, "failed to decrement tracker count after delete",
			slog.String("user_id", userID),
			slog.String("tracker_id", id),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
