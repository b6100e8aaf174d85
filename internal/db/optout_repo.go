package db

import (
	"context"

	"luach/internal/types"
)

// OptOutRepository provides data access for the optouts table.
//
// Schema:
//
//	CREATE TABLE optouts (
//	    subscription_id BIGINT NOT NULL,
//	    slot            INT NOT NULL DEFAULT 0,
//	    occurrence_key  TEXT NOT NULL DEFAULT '',
//	    active          BOOLEAN NOT NULL DEFAULT TRUE,
//	    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (subscription_id, slot, occurrence_key)
//	);
//
// slot 0 suppresses the whole subscription; a non-empty occurrence_key
// narrows the suppression to one computed identity.
type OptOutRepository struct {
	db DBTX
}

// NewOptOutRepository creates an OptOutRepository.
func NewOptOutRepository(db DBTX) *OptOutRepository {
	return &OptOutRepository{db: db}
}

// ListActive returns all currently active opt-outs.
func (r *OptOutRepository) ListActive(ctx context.Context) ([]types.OptOut, error) {
	rows, err := r.db.Query(ctx,
		`SELECT subscription_id, slot, occurrence_key, updated_at
		 FROM optouts
		 WHERE active`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list optouts", err)
	}
	defer rows.Close()

	var outs []types.OptOut
	for rows.Next() {
		var o types.OptOut
		if err := rows.Scan(&o.SubscriptionID, &o.Slot, &o.OccurrenceKey, &o.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan optout row", err)
		}
		outs = append(outs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "optout row iteration failed", err)
	}
	return outs, nil
}

// Upsert records an opt-out, reactivating it if a matching row was
// previously deactivated.
func (r *OptOutRepository) Upsert(ctx context.Context, o types.OptOut) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO optouts (subscription_id, slot, occurrence_key, active, updated_at)
		 VALUES ($1, $2, $3, TRUE, NOW())
		 ON CONFLICT (subscription_id, slot, occurrence_key)
		 DO UPDATE SET active = TRUE, updated_at = NOW()`,
		o.SubscriptionID, o.Slot, o.OccurrenceKey,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert optout", err)
	}
	return nil
}
