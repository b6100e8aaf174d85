package db

import (
	"context"

	"luach/internal/types"
)

// DigestRepository provides data access for weekly-digest recipients. A
// digest subscription is a subscriptions row joined to a resolved geographic
// location plus per-subscriber candle/havdalah offsets.
//
// Schema:
//
//	CREATE TABLE digest_subscriptions (
//	    email         TEXT PRIMARY KEY,
//	    name          TEXT NOT NULL DEFAULT '',
//	    location_id   TEXT NOT NULL REFERENCES locations(id),
//	    candle_mins   INT NOT NULL DEFAULT 18,
//	    havdalah_mins INT NOT NULL DEFAULT 50,
//	    status        TEXT NOT NULL DEFAULT 'active'
//	);
//	CREATE TABLE locations (
//	    id           TEXT PRIMARY KEY,  -- postal or geoname key
//	    name         TEXT NOT NULL,
//	    country_code TEXT NOT NULL,
//	    latitude     DOUBLE PRECISION NOT NULL,
//	    longitude    DOUBLE PRECISION NOT NULL,
//	    tzid         TEXT NOT NULL
//	);
type DigestRepository struct {
	db DBTX
}

// NewDigestRepository creates a DigestRepository.
func NewDigestRepository(db DBTX) *DigestRepository {
	return &DigestRepository{db: db}
}

// ListActive returns every active digest subscriber with its location
// resolved. Ordering here is incidental; the dispatcher applies the
// east-to-west send order itself.
func (r *DigestRepository) ListActive(ctx context.Context) ([]types.DigestSubscriber, error) {
	rows, err := r.db.Query(ctx,
		`SELECT d.email, d.name, d.location_id, l.name, l.country_code,
		        l.latitude, l.longitude, l.tzid, d.candle_mins, d.havdalah_mins
		 FROM digest_subscriptions d
		 JOIN locations l ON l.id = d.location_id
		 WHERE d.status = $1`,
		string(types.StatusActive),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list digest subscribers", err)
	}
	defer rows.Close()

	var subs []types.DigestSubscriber
	for rows.Next() {
		var s types.DigestSubscriber
		if err := rows.Scan(&s.EmailAddress, &s.Name, &s.LocationID, &s.LocationName,
			&s.CountryCode, &s.Latitude, &s.Longitude, &s.TimeZoneID,
			&s.CandleMins, &s.HavdalahMins); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan digest subscriber", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "digest subscriber iteration failed", err)
	}
	return subs, nil
}

// Unsubscribe flips a digest subscription to 'unsubscribed'. Returns the
// number of rows changed; zero means the address was unknown or already
// inactive.
func (r *DigestRepository) Unsubscribe(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE digest_subscriptions SET status = $1 WHERE email = $2 AND status = $3`,
		string(types.StatusUnsubscribed), email, string(types.StatusActive),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to unsubscribe digest subscriber", err)
	}
	return tag.RowsAffected(), nil
}

// MarkBounced flips a digest subscription to 'bounced'.
func (r *DigestRepository) MarkBounced(ctx context.Context, email string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE digest_subscriptions SET status = $1 WHERE email = $2 AND status = $3`,
		string(types.StatusBounced), email, string(types.StatusActive),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark digest subscriber bounced", err)
	}
	return tag.RowsAffected(), nil
}
