// Package eligibility decides which occurrences are due for sending on a
// given day. It walks every active subscription, slot and candidate cycle,
// applies the opt-out hierarchy, consults the occurrence calculator, bounds
// the result against each configured lookahead window, and gates it through
// the dedup ledger.
package eligibility

import (
	"context"
	"sort"
	"time"

	"luach/internal/calendar"
	"luach/internal/types"
)

// LedgerReader is the read side of the dedup ledger consumed by the engine.
type LedgerReader interface {
	HasSent(ctx context.Context, subID int64, slot, cycle int, key string, windowDays int) (bool, error)
}

// Candidate is one occurrence ready to send, tagged with the lookahead
// window it satisfied.
type Candidate struct {
	Subscription  types.Subscription
	Entry         types.RecurrenceEntry
	Cycle         int
	ObservedDate  time.Time
	OccurrenceKey string
	WindowDays    int
	DiffDays      int
}

// Recipient implements dispatch ordering and addressing.
func (c Candidate) Recipient() string { return c.Subscription.EmailAddress }

// Engine selects send candidates. It holds no per-run state; the selected
// set lives on the stack of Select so overlapping runs (already excluded by
// the external lock) could never share it anyway.
type Engine struct {
	cal    calendar.Calendar
	ledger LedgerReader
	log    types.Logger
}

// New creates an Engine.
func New(cal calendar.Calendar, ledger LedgerReader, log types.Logger) *Engine {
	return &Engine{cal: cal, ledger: ledger, log: log}
}

// selectionID identifies a candidate independent of window: once selected
// under any window, the same (subscription, slot, cycle) must not be
// re-selected in this run.
type selectionID struct {
	subID int64
	slot  int
	cycle int
}

// keyID identifies a candidate by its content-derived occurrence key.
type keyID struct {
	subID int64
	cycle int
	key   string
}

// Select returns the occurrences due today across all subscriptions.
//
// Windows are evaluated shortest first, so when both a 1-day and a 7-day
// window are configured an occurrence exactly one day out is attributed to
// the 1-day window and the 7-day check never re-selects it.
//
// Per-candidate problems (calculator errors, ledger read failures) are
// logged and skipped; a skipped candidate is simply re-evaluated on the
// next run. Only a nil return with no error means "nothing due".
func (e *Engine) Select(ctx context.Context, today time.Time, subs []types.SubscriberRecurrences, optouts *OptOutIndex, windowDays []int) ([]Candidate, error) {
	windows := append([]int(nil), windowDays...)
	sort.Ints(windows)

	selected := make(map[selectionID]bool)
	// selectedKeys collapses distinct slots that resolve to the same
	// computed occurrence within one run; the ledger enforces the same
	// collapse across runs.
	selectedKeys := make(map[keyID]bool)
	var out []Candidate

	for _, sub := range subs {
		if optouts.Subscription(sub.Subscription.ID) {
			e.log.Debug("subscription opted out", "subscription_id", sub.Subscription.ID)
			continue
		}

		for _, slot := range sortedSlots(sub.Entries) {
			entry := sub.Entries[slot]
			if optouts.Slot(sub.Subscription.ID, slot) {
				e.log.Debug("slot opted out",
					"subscription_id", sub.Subscription.ID, "slot", slot)
				continue
			}

			for _, cycle := range candidateCycles(today) {
				id := selectionID{subID: sub.Subscription.ID, slot: slot, cycle: cycle}
				if selected[id] {
					continue
				}

				cand, ok := e.evaluate(ctx, today, sub.Subscription, entry, cycle, optouts, windows)
				if !ok {
					continue
				}
				kid := keyID{subID: sub.Subscription.ID, cycle: cycle, key: cand.OccurrenceKey}
				if selectedKeys[kid] {
					e.log.Debug("occurrence key already selected this run",
						"subscription_id", sub.Subscription.ID, "slot", slot,
						"occurrence_key", cand.OccurrenceKey)
					continue
				}
				selected[id] = true
				selectedKeys[kid] = true
				out = append(out, cand)
			}
		}
	}
	return out, nil
}

// evaluate runs steps 3-8 of the per-candidate algorithm for one
// (entry, cycle) pair and returns the candidate under the tightest window
// that accepts it.
func (e *Engine) evaluate(ctx context.Context, today time.Time, sub types.Subscription, entry types.RecurrenceEntry, cycle int, optouts *OptOutIndex, windows []int) (Candidate, bool) {
	observed, ok, err := e.cal.Occurrence(ctx, entry.Kind, entry.EffectiveAnchor(), cycle)
	if err != nil {
		e.log.Warn("occurrence computation failed",
			"subscription_id", sub.ID, "slot", entry.Slot, "cycle", cycle, "error", err.Error())
		return Candidate{}, false
	}
	if !ok {
		e.log.Debug("no occurrence this cycle",
			"subscription_id", sub.ID, "slot", entry.Slot, "cycle", cycle)
		return Candidate{}, false
	}

	key := types.OccurrenceKey(observed, entry.Kind)
	if optouts.Occurrence(sub.ID, entry.Slot, key) {
		e.log.Debug("occurrence opted out",
			"subscription_id", sub.ID, "slot", entry.Slot, "occurrence_key", key)
		return Candidate{}, false
	}

	diff := types.DaysBetween(today, observed)
	if diff < 0 {
		e.log.Debug("occurrence already passed",
			"subscription_id", sub.ID, "slot", entry.Slot, "diff_days", diff)
		return Candidate{}, false
	}

	for _, w := range windows {
		if diff >= w {
			// Too far out for this window; a longer one may still take it.
			continue
		}
		sent, err := e.ledger.HasSent(ctx, sub.ID, entry.Slot, cycle, key, w)
		if err != nil {
			// Fail closed for this run: skipping means no send, and the
			// candidate comes back next run.
			e.log.Error("ledger read failed",
				"subscription_id", sub.ID, "slot", entry.Slot, "window_days", w, "error", err.Error())
			return Candidate{}, false
		}
		if sent {
			// This window already covered the occurrence, so wider windows
			// must not reconsider it: a re-run with the same today and an
			// updated ledger selects nothing.
			break
		}
		return Candidate{
			Subscription:  sub,
			Entry:         entry,
			Cycle:         cycle,
			ObservedDate:  observed,
			OccurrenceKey: key,
			WindowDays:    w,
			DiffDays:      diff,
		}, true
	}
	return Candidate{}, false
}

// candidateCycles returns the target years to evaluate. Occurrences that
// cross the year boundary are only visible when December evaluations also
// look into the next year.
func candidateCycles(today time.Time) []int {
	if today.Month() == time.December {
		return []int{today.Year(), today.Year() + 1}
	}
	return []int{today.Year()}
}

func sortedSlots(entries map[int]types.RecurrenceEntry) []int {
	slots := make([]int, 0, len(entries))
	for s := range entries {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	return slots
}
