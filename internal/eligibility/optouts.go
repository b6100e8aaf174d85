package eligibility

import "luach/internal/types"

// OptOutIndex answers the three opt-out scopes in O(1) per lookup. It is
// built once per run from the active opt-out rows.
type OptOutIndex struct {
	subscription map[int64]bool
	slot         map[int64]map[int]bool
	occurrence   map[int64]map[int]map[string]bool
}

// NewOptOutIndex builds an index from active opt-out rows. Slot 0 rows
// suppress the whole subscription; rows with an occurrence key suppress only
// that computed identity, so editing the underlying date away from an
// opted-out occurrence resumes sending under the fresh key.
func NewOptOutIndex(outs []types.OptOut) *OptOutIndex {
	idx := &OptOutIndex{
		subscription: make(map[int64]bool),
		slot:         make(map[int64]map[int]bool),
		occurrence:   make(map[int64]map[int]map[string]bool),
	}
	for _, o := range outs {
		switch {
		case o.Slot == 0:
			idx.subscription[o.SubscriptionID] = true
		case o.OccurrenceKey == "":
			if idx.slot[o.SubscriptionID] == nil {
				idx.slot[o.SubscriptionID] = make(map[int]bool)
			}
			idx.slot[o.SubscriptionID][o.Slot] = true
		default:
			if idx.occurrence[o.SubscriptionID] == nil {
				idx.occurrence[o.SubscriptionID] = make(map[int]map[string]bool)
			}
			if idx.occurrence[o.SubscriptionID][o.Slot] == nil {
				idx.occurrence[o.SubscriptionID][o.Slot] = make(map[string]bool)
			}
			idx.occurrence[o.SubscriptionID][o.Slot][o.OccurrenceKey] = true
		}
	}
	return idx
}

// Subscription reports a subscription-level opt-out.
func (i *OptOutIndex) Subscription(subID int64) bool {
	return i.subscription[subID]
}

// Slot reports a slot-level opt-out covering every cycle of the slot.
func (i *OptOutIndex) Slot(subID int64, slot int) bool {
	return i.slot[subID][slot]
}

// Occurrence reports an opt-out scoped to one computed occurrence key.
func (i *OptOutIndex) Occurrence(subID int64, slot int, key string) bool {
	return i.occurrence[subID][slot][key]
}
