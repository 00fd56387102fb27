package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scoutpup/internal/types"
)

// ============================================================
// GetByID Tests
// ============================================================

func TestUserRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	resetDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_123" // user_id
			email := "pup@example.com"      // email (nullable)
			*dest[1].(**string) = &email
			cust := "cus_abc" // billing_customer_id (nullable)
			*dest[2].(**string) = &cust
			*dest[3].(*types.SubscriptionStatus) = types.SubStatusActive
			*dest[4].(*int) = 3          // tracker_count
			*dest[5].(*int) = 42         // check_count
			*dest[6].(**time.Time) = &resetDate
			*dest[7].(*time.Time) = now  // created_at
			*dest[8].(*time.Time) = now  // updated_at
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_123"}).Return(row)

	user, err := repo.GetByID(ctx, "user_123")
	require.NoError(t, err)
	assert.Equal(t, "user_123", user.ID)
	assert.Equal(t, "pup@example.com", user.Email)
	assert.Equal(t, "cus_abc", user.BillingCustomerID)
	assert.Equal(t, types.SubStatusActive, user.SubscriptionStatus)
	assert.Equal(t, 3, user.TrackerCount)
	assert.Equal(t, 42, user.CheckCount)
	require.NotNil(t, user.LastCounterResetDate)
	assert.Equal(t, resetDate, *user.LastCounterResetDate)

	db.AssertExpectations(t)
}

func TestUserRepository_GetByID_NullableColumns(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_free"
			*dest[1].(**string) = nil // email
			*dest[2].(**string) = nil // billing_customer_id
			*dest[3].(*types.SubscriptionStatus) = types.SubStatusNone
			*dest[4].(*int) = 0
			*dest[5].(*int) = 0
			*dest[6].(**time.Time) = nil
			*dest[7].(*time.Time) = now
			*dest[8].(*time.Time) = now
			return nil
		},
	}

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_free"}).Return(row)

	user, err := repo.GetByID(ctx, "user_free")
	require.NoError(t, err)
	assert.Empty(t, user.Email)
	assert.Empty(t, user.BillingCustomerID)
	assert.Equal(t, types.SubStatusNone, user.SubscriptionStatus)
	assert.Nil(t, user.LastCounterResetDate)

	db.AssertExpectations(t)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: pgx.ErrNoRows}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"user_missing"}).Return(row)

	_, err := repo.GetByID(ctx, "user_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)

	db.AssertExpectations(t)
}

// ============================================================
// EnsureUser Tests
// ============================================================

func TestUserRepository_EnsureUser_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	email := "pup@example.com"
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", &email}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.EnsureUser(context.Background(), "user_1", "pup@example.com")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestUserRepository_EnsureUser_EmptyEmailStoredAsNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", (*string)(nil)}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.EnsureUser(context.Background(), "user_1", "")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestUserRepository_EnsureUser_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.EnsureUser(context.Background(), "user_1", "pup@example.com")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

// ============================================================
// IncrementTrackerCountIfBelow Tests
// ============================================================

func TestUserRepository_IncrementTrackerCountIfBelow_SlotAvailable(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", 5}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	ok, err := repo.IncrementTrackerCountIfBelow(context.Background(), "user_1", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	db.AssertExpectations(t)
}

func TestUserRepository_IncrementTrackerCountIfBelow_AtLimit(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	// Conditional UPDATE matches no rows when tracker_count >= limit.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", 1}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	ok, err := repo.IncrementTrackerCountIfBelow(context.Background(), "user_1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	db.AssertExpectations(t)
}

func TestUserRepository_IncrementTrackerCountIfBelow_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

	ok, err := repo.IncrementTrackerCountIfBelow(context.Background(), "user_1", 5)
	require.Error(t, err)
	assert.False(t, ok)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestUserRepository_DecrementTrackerCount_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.DecrementTrackerCount(context.Background(), "user_1")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

// ============================================================
// Subscription State Tests
// ============================================================

func TestUserRepository_ActivateSubscription_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", "cus_abc"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.ActivateSubscription(context.Background(), "user_1", "cus_abc")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestUserRepository_ActivateSubscription_UserNotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user_gone", "cus_abc"}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.ActivateSubscription(context.Background(), "user_gone", "cus_abc")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestUserRepository_SetSubscriptionStatusByCustomer_Matched(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"cus_abc", types.SubStatusPastDue}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	matched, err := repo.SetSubscriptionStatusByCustomer(context.Background(), "cus_abc", types.SubStatusPastDue)
	require.NoError(t, err)
	assert.True(t, matched)
	db.AssertExpectations(t)
}

func TestUserRepository_SetSubscriptionStatusByCustomer_UnknownCustomer(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"cus_stranger", types.SubStatusCanceled}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	matched, err := repo.SetSubscriptionStatusByCustomer(context.Background(), "cus_stranger", types.SubStatusCanceled)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestUserRepository_ResetCheckCountByCustomer_Matched(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"cus_abc"}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	matched, err := repo.ResetCheckCountByCustomer(context.Background(), "cus_abc")
	require.NoError(t, err)
	assert.True(t, matched)
	db.AssertExpectations(t)
}
