package ledger

import (
	"context"

	"luach/internal/eligibility"
)

// Recorder adapts the Ledger to the dispatcher's per-candidate commit hook.
type Recorder struct {
	ledger *Ledger
}

// NewRecorder wraps a Ledger for dispatch use.
func NewRecorder(l *Ledger) *Recorder {
	return &Recorder{ledger: l}
}

// RecordSent commits one successful anniversary send. The provider message
// ID is not persisted; the ledger keys on the occurrence identity alone.
func (r *Recorder) RecordSent(ctx context.Context, cand eligibility.Candidate, _ string) error {
	return r.ledger.RecordSent(ctx,
		cand.Subscription.ID,
		cand.Entry.Slot,
		cand.Cycle,
		cand.OccurrenceKey,
		cand.WindowDays,
	)
}
