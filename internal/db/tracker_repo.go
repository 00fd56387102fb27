package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"scoutpup/internal/types"
)

// TrackerRepository provides data access for the trackers table. All queries
// are scoped to the owning user at the SQL level, so a tracker can never be
// read or mutated across account boundaries.
type TrackerRepository struct {
	db DBTX
}

// NewTrackerRepository creates a new TrackerRepository backed by the given
// database connection (pool or transaction).
func NewTrackerRepository(db DBTX) *TrackerRepository {
	return &TrackerRepository{db: db}
}

// trackerColumns defines the standard set of columns selected for tracker queries.
const trackerColumns = `id, user_id, name, url, prompt, check_interval, created_at, updated_at`

// scanTracker scans a single tracker row. The columns must match the order
// defined in trackerColumns.
func scanTracker(row pgx.Row) (*types.Tracker, error) {
	var t types.Tracker
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Name,
		&t.URL,
		&t.Prompt,
		&t.CheckInterval,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts a new tracker record. The caller must set the ID (prefixed
// UUID, e.g. "trk_...") and required fields before calling. The caller is also
// responsible for having reserved a slot via
// UserRepository.IncrementTrackerCountIfBelow first.
func (r *TrackerRepository) Create(ctx context.Context, t *types.Tracker) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO trackers (
			id, user_id, name, url, prompt, check_interval,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			COALESCE($7, NOW()), COALESCE($8, NOW())
		)`,
		t.ID,
		t.UserID,
		t.Name,
		t.URL,
		t.Prompt,
		t.CheckInterval,
		nilIfZeroTime(t.CreatedAt),
		nilIfZeroTime(t.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create tracker", err)
	}
	return nil
}

// ListByUser retrieves all trackers owned by the user, newest first.
// Tracker counts are bounded by plan limits (at most 10), so no pagination.
func (r *TrackerRepository) ListByUser(ctx context.Context, userID string) ([]*types.Tracker, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+trackerColumns+`
		 FROM trackers
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list trackers", err)
	}
	defer rows.Close()

	var results []*types.Tracker
	for rows.Next() {
		t, scanErr := scanTracker(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan tracker row", scanErr)
		}
		results = append(results, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating tracker rows", err)
	}

	return results, nil
}

// Update applies changes to an existing tracker, scoped to the owning user,
// and returns the updated row. Returns ErrCodeNotFoundTracker when the tracker
// does not exist or belongs to another user.
func (r *TrackerRepository) Update(ctx context.Context, t *types.Tracker) (*types.Tracker, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE trackers SET
			name = $1,
			url = $2,
			prompt = $3,
			check_interval = $4,
			updated_at = NOW()
		 WHERE id = $5 AND user_id = $6
		 RETURNING `+trackerColumns,
		t.Name,
		t.URL,
		t.Prompt,
		t.CheckInterval,
		t.ID,
		t.UserID,
	)

	updated, err := scanTracker(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTracker, "tracker not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update tracker", err)
	}
	return updated, nil
}

// Delete removes a tracker, scoped to the owning user. Returns
// ErrCodeNotFoundTracker when no row was deleted. The caller is responsible
// for decrementing the user's tracker count afterwards.
func (r *TrackerRepository) Delete(ctx context.Context, id string, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM trackers WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete tracker", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTracker, "tracker not found", nil)
	}
	return nil
}

// nilIfZeroTime returns nil if the time is zero, otherwise returns a pointer
// to the time. Used to let the DB default (NOW()) apply when no time is set.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// nilIfEmpty returns nil for the empty string, otherwise a pointer to the
// string. Used for nullable text columns.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
