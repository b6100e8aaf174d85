package optout

import (
	"context"

	"luach/internal/types"
)

// Store persists opt-out rows.
type Store interface {
	Upsert(ctx context.Context, o types.OptOut) error
}

// SubscriptionChecker confirms a subscription exists before an opt-out is
// recorded against it.
type SubscriptionChecker interface {
	GetByID(ctx context.Context, id int64) (*types.Subscription, error)
}

// Service applies opt-out requests. It is the single write path for the
// optouts table; both the one-click unsubscribe handler and the JSON API go
// through it.
type Service struct {
	store Store
	subs  SubscriptionChecker
	log   types.Logger
}

// NewService creates a Service.
func NewService(store Store, subs SubscriptionChecker, logger types.Logger) *Service {
	return &Service{store: store, subs: subs, log: logger}
}

// Apply records the opt-out described by the claims. Slot 0 with an empty
// occurrence key suppresses the whole subscription; a nonzero slot mutes one
// slot; a non-empty occurrence key skips a single occurrence.
func (s *Service) Apply(ctx context.Context, claims Claims) error {
	if _, err := s.subs.GetByID(ctx, claims.SubscriptionID); err != nil {
		return err
	}
	err := s.store.Upsert(ctx, types.OptOut{
		SubscriptionID: claims.SubscriptionID,
		Slot:           claims.Slot,
		OccurrenceKey:  claims.OccurrenceKey,
	})
	if err != nil {
		return err
	}
	s.log.Info("opt-out recorded",
		"subscription_id", claims.SubscriptionID,
		"slot", claims.Slot,
		"occurrence_scoped", claims.OccurrenceKey != "")
	return nil
}
