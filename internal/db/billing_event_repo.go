package db

import (
	"context"

	"scoutpup/internal/types"
)

// BillingEventRepository provides the processed-event ledger for payment
// provider webhooks. The ledger is the idempotency barrier: an event ID is
// recorded exactly once, and redeliveries of the same ID are detected before
// any state mutation happens.
type BillingEventRepository struct {
	db DBTX
}

// NewBillingEventRepository creates a new BillingEventRepository backed by the
// given database connection (pool or transaction).
func NewBillingEventRepository(db DBTX) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

// MarkProcessed records the event ID in the ledger. Returns true if this is
// the first sighting of the event, false if it was already recorded (a
// redelivery). The INSERT ... ON CONFLICT DO NOTHING form makes the check and
// the record a single atomic statement, so two concurrent deliveries of the
// same event cannot both observe "first sighting".
func (r *BillingEventRepository) MarkProcessed(ctx context.Context, eventID string, eventType string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO billing_events (event_id, event_type, received_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record billing event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Unmark removes the ledger entry for an event whose processing failed, so
// the provider's redelivery is treated as first-seen and runs again. Deleting
// a missing row is a no-op.
func (r *BillingEventRepository) Unmark(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM billing_events WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to release billing event", err)
	}
	return nil
}

// DeleteOlderThan prunes ledger entries older than the given number of days.
// Payment providers redeliver events within a bounded window, so entries
// beyond it serve no dedupe purpose. Intended for a periodic maintenance job.
func (r *BillingEventRepository) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM billing_events
		 WHERE received_at < NOW() - make_interval(days => $1)`,
		days,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to prune billing events", err)
	}
	return tag.RowsAffected(), nil
}
