package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"luach/internal/types"
)

// LedgerRepository provides data access for the send ledger. The original
// deployment kept one table per lookahead window; here the window length is
// an explicit column on a single table, which preserves the two-window
// behavior while collapsing the schemas.
//
// Schema:
//
//	CREATE TABLE send_ledger (
//	    id              UUID PRIMARY KEY,
//	    subscription_id BIGINT NOT NULL,
//	    slot            INT NOT NULL,
//	    cycle           INT NOT NULL,
//	    occurrence_key  TEXT NOT NULL DEFAULT '',
//	    window_days     INT NOT NULL,
//	    sent_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX ON send_ledger (subscription_id, slot, cycle, window_days);
//
// There is deliberately no uniqueness constraint: duplicate rows are
// tolerable because readers only ask existence questions. Idempotence is a
// check-before-write discipline owned by internal/ledger.
type LedgerRepository struct {
	db DBTX
}

// NewLedgerRepository creates a LedgerRepository.
func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Exists reports whether a send record matches the identity within the
// retention horizon. Two row generations must both count as already sent:
//
//   - Keyed rows match on (subscription, cycle, window, occurrence_key)
//     regardless of slot, so two slots that collapse to the same computed
//     occurrence produce at most one send for that key.
//   - Legacy rows written before the keying scheme carry an empty key and
//     match on (subscription, slot, cycle, window).
func (r *LedgerRepository) Exists(ctx context.Context, subID int64, slot, cycle int, key string, windowDays int, since time.Time) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM send_ledger
		    WHERE subscription_id = $1
		      AND cycle = $2
		      AND window_days = $3
		      AND sent_at >= $4
		      AND ((occurrence_key <> '' AND occurrence_key = $5)
		        OR (occurrence_key = '' AND slot = $6))
		 )`,
		subID, cycle, windowDays, since, key, slot,
	).Scan(&found)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to query send ledger", err)
	}
	return found, nil
}

// Insert appends one send record. The row is never mutated afterwards;
// retention is an age filter on reads, not a delete.
func (r *LedgerRepository) Insert(ctx context.Context, rec types.SendRecord) error {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	sentAt := rec.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO send_ledger
		 (id, subscription_id, slot, cycle, occurrence_key, window_days, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, rec.SubscriptionID, rec.Slot, rec.Cycle, rec.OccurrenceKey, rec.WindowDays, sentAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert send record", err)
	}
	return nil
}
