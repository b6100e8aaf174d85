package db

import (
	"context"

	"luach/internal/types"
)

// SubscriptionRepository provides data access for the subscriptions table.
//
// Schema:
//
//	CREATE TABLE subscriptions (
//	    id          BIGSERIAL PRIMARY KEY,
//	    email       TEXT NOT NULL,
//	    status      TEXT NOT NULL DEFAULT 'active',
//	    recurrences JSONB NOT NULL DEFAULT '{}',
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a SubscriptionRepository backed by the
// given connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// ListActive returns every subscription in status 'active' with its raw
// recurrence JSON. Unsubscribed and bounced rows are filtered at the query;
// they must never reach the eligibility filter.
func (r *SubscriptionRepository) ListActive(ctx context.Context) ([]types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, email, status, recurrences, created_at
		 FROM subscriptions
		 WHERE status = $1
		 ORDER BY id`,
		string(types.StatusActive),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active subscriptions", err)
	}
	defer rows.Close()

	var subs []types.Subscription
	for rows.Next() {
		var s types.Subscription
		var status string
		if err := rows.Scan(&s.ID, &s.EmailAddress, &status, &s.RecurrenceJSON, &s.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription row", err)
		}
		s.Status = types.SubscriptionStatus(status)
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "subscription row iteration failed", err)
	}
	return subs, nil
}

// MarkBounced flips every subscription for the given address to 'bounced'.
// Called by the bounce worker on permanent bounces and spam complaints.
// Returns the number of rows updated; zero is not an error (the address may
// have already been removed).
func (r *SubscriptionRepository) MarkBounced(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = $1 WHERE email = $2 AND status = $3`,
		string(types.StatusBounced), email, string(types.StatusActive),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark subscription bounced", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID fetches a single subscription regardless of status. Used by the
// opt-out API to confirm the target exists before recording an opt-out.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id int64) (*types.Subscription, error) {
	var s types.Subscription
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT id, email, status, recurrences, created_at
		 FROM subscriptions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.EmailAddress, &status, &s.RecurrenceJSON, &s.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", err)
	}
	s.Status = types.SubscriptionStatus(status)
	return &s, nil
}
