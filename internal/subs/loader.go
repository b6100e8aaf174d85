package subs

import (
	"context"

	"luach/internal/types"
)

// SubscriptionSource abstracts the storage read the Loader depends on.
// Satisfied by db.SubscriptionRepository.
type SubscriptionSource interface {
	ListActive(ctx context.Context) ([]types.Subscription, error)
}

// Loader reads active subscriptions and normalizes their recurrence
// payloads. Subscriptions that normalize to zero entries are dropped here so
// the eligibility filter only ever sees complete slots.
type Loader struct {
	source SubscriptionSource
	log    types.Logger
}

// NewLoader creates a Loader.
func NewLoader(source SubscriptionSource, log types.Logger) *Loader {
	return &Loader{source: source, log: log}
}

// LoadActive returns every active subscription carrying at least one
// complete recurrence slot. A malformed payload is logged at warning and the
// subscription skipped; the batch never aborts on bad input.
func (l *Loader) LoadActive(ctx context.Context) ([]types.SubscriberRecurrences, error) {
	subs, err := l.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.SubscriberRecurrences, 0, len(subs))
	for _, sub := range subs {
		entries, err := Normalize(sub.RecurrenceJSON)
		if err != nil {
			l.log.Warn("skipping subscription with malformed recurrence payload",
				"subscription_id", sub.ID, "error", err.Error())
			continue
		}
		if MaxSlot(entries) == 0 {
			l.log.Debug("subscription has no complete recurrence slots",
				"subscription_id", sub.ID)
			continue
		}
		out = append(out, types.SubscriberRecurrences{Subscription: sub, Entries: entries})
	}
	return out, nil
}
