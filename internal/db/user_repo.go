package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"scoutpup/internal/types"
)

// UserRepository provides data access for the users table. The table mirrors
// billing and usage state for accounts owned by the hosted identity provider;
// it never stores credentials.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
const userColumns = `user_id, email, billing_customer_id, subscription_status,
	tracker_count, check_count, last_counter_reset_date, created_at, updated_at`

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var (
		email             *string
		billingCustomerID *string
	)

	err := row.Scan(
		&u.ID,
		&email,
		&billingCustomerID,
		&u.SubscriptionStatus,
		&u.TrackerCount,
		&u.CheckCount,
		&u.LastCounterResetDate,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if email != nil {
		u.Email = *email
	}
	if billingCustomerID != nil {
		u.BillingCustomerID = *billingCustomerID
	}

	return &u, nil
}

// EnsureUser inserts the user row if it does not exist yet, refreshing the
// stored email when the identity provider reports a new one. Called on every
// authenticated request, so the statement must be a cheap no-op for existing
// rows.
func (r *UserRepository) EnsureUser(ctx context.Context, userID string, email string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (user_id, email, subscription_status, tracker_count, check_count, created_at, updated_at)
		 VALUES ($1, $2, 'none', 0, 0, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			updated_at = NOW()
		 WHERE users.email IS DISTINCT FROM EXCLUDED.email`,
		userID, nilIfEmpty(email),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure user row", err)
	}
	return nil
}

// GetByID retrieves a user by ID. Returns ErrCodeNotFoundUser if no row exists.
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`,
		userID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// IncrementTrackerCountIfBelow atomically increments tracker_count only if the
// current value is below the given limit. Returns true if the increment was
// applied, false if the user is at or over the limit.
//
// The single conditional UPDATE is the concurrency gate for tracker creation:
// two simultaneous creates race on this statement, and at most (limit - count)
// of them can win.
func (r *UserRepository) IncrementTrackerCountIfBelow(ctx context.Context, userID string, limit int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			tracker_count = tracker_count + 1,
			updated_at = NOW()
		 WHERE user_id = $1 AND tracker_count < $2`,
		userID, limit,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to increment tracker count", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DecrementTrackerCount atomically decrements tracker_count, clamping at zero.
// Used after tracker deletion and as the compensating action when a tracker
// insert fails after the count was already incremented.
func (r *UserRepository) DecrementTrackerCount(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET
			tracker_count = GREATEST(tracker_count - 1, 0),
			updated_at = NOW()
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to decrement tracker count", err)
	}
	return nil
}

// ActivateSubscription links the user to a payment provider customer and marks
// the subscription active, zeroing both usage counters for the new billing
// cycle. Called when a checkout session completes.
func (r *UserRepository) ActivateSubscription(ctx context.Context, userID string, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			billing_customer_id = $2,
			subscription_status = 'active',
			check_count = 0,
			tracker_count = 0,
			last_counter_reset_date = NOW(),
			updated_at = NOW()
		 WHERE user_id = $1`,
		userID, customerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found for subscription activation", nil)
	}
	return nil
}

// SetSubscriptionStatusByCustomer sets the subscription status for the user
// linked to the given payment provider customer. Returns false (without error)
// when no user matches the customer; webhook handlers treat that as a benign
// no-op since events can arrive for customers created outside this system.
func (r *UserRepository) SetSubscriptionStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			subscription_status = $2,
			updated_at = NOW()
		 WHERE billing_customer_id = $1`,
		customerID, status,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to set subscription status", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResetCheckCountByCustomer zeroes the monthly check counter and stamps the
// reset date for the user linked to the given customer. Called when an invoice
// payment succeeds (the start of a new billing period).
func (r *UserRepository) ResetCheckCountByCustomer(ctx context.Context, customerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET
			check_count = 0,
			last_counter_reset_date = NOW(),
			updated_at = NOW()
		 WHERE billing_customer_id = $1`,
		customerID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to reset check count", err)
	}
	return tag.RowsAffected() > 0, nil
}
