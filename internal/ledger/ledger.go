// Package ledger implements the dedup ledger: the single source of truth
// for "has this exact occurrence already been sent" and the only component
// allowed to write send records.
//
// The check-then-act sequence is not atomic across processes. That is
// acceptable because each engine runs as a single periodic batch serialized
// by an external advisory lock; the ledger does not pretend to provide
// transactional isolation it cannot have.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"luach/internal/types"
)

// Store abstracts the persisted ledger rows. Satisfied by
// db.LedgerRepository; tests provide in-memory fakes.
type Store interface {
	// Exists reports a matching row (keyed or legacy un-keyed) newer than
	// since.
	Exists(ctx context.Context, subID int64, slot, cycle int, key string, windowDays int, since time.Time) (bool, error)
	// Insert appends one row.
	Insert(ctx context.Context, rec types.SendRecord) error
}

// Ledger gates sends through the persisted history. Retention is an age
// horizon applied on every read; rows beyond it stop counting without ever
// being deleted.
type Ledger struct {
	store     Store
	retention time.Duration
	now       func() time.Time
}

// New creates a Ledger. retentionDays bounds how far back HasSent looks.
func New(store Store, retentionDays int) *Ledger {
	return &Ledger{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// NewWithClock creates a Ledger with an injected clock for tests.
func NewWithClock(store Store, retentionDays int, now func() time.Time) *Ledger {
	l := New(store, retentionDays)
	l.now = now
	return l
}

// HasSent reports whether a send record exists for the identity within the
// window's retention period. Keyed rows match on the occurrence key alone
// (within the subscription, cycle and window), so two slots collapsing to
// the same computed occurrence share one send. Records written before
// occurrence keys existed carry an empty key and still match on
// (subscription, slot, cycle, window).
func (l *Ledger) HasSent(ctx context.Context, subID int64, slot, cycle int, key string, windowDays int) (bool, error) {
	since := l.now().UTC().Add(-l.retention)
	return l.store.Exists(ctx, subID, slot, cycle, key, windowDays, since)
}

// RecordSent appends a send record unless one already exists. Idempotence
// comes from checking before writing, not from a uniqueness constraint; a
// duplicate row slipping through is harmless because readers only ask
// existence questions.
//
// Callers must invoke this only after the transport reported success. A
// failed send stays unrecorded so the occurrence is retried next run.
func (l *Ledger) RecordSent(ctx context.Context, subID int64, slot, cycle int, key string, windowDays int) error {
	sent, err := l.HasSent(ctx, subID, slot, cycle, key, windowDays)
	if err != nil {
		return err
	}
	if sent {
		return nil
	}
	return l.store.Insert(ctx, types.SendRecord{
		ID:             uuid.NewString(),
		SubscriptionID: subID,
		Slot:           slot,
		Cycle:          cycle,
		OccurrenceKey:  key,
		WindowDays:     windowDays,
		SentAt:         l.now().UTC(),
	})
}
