package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luach/internal/calendar"
	"luach/internal/types"
)

// mockCalendar returns canned occurrence dates keyed by (anchor, cycle).
type mockCalendar struct {
	occurrences map[string]time.Time // key: anchor ISO + "|" + cycle
}

func (m *mockCalendar) key(anchor time.Time, cycle int) string {
	return anchor.Format("2006-01-02") + "|" + time.Date(cycle, 1, 1, 0, 0, 0, 0, time.UTC).Format("2006")
}

func (m *mockCalendar) set(anchor time.Time, cycle int, observed time.Time) {
	if m.occurrences == nil {
		m.occurrences = make(map[string]time.Time)
	}
	m.occurrences[m.key(anchor, cycle)] = observed
}

func (m *mockCalendar) Occurrence(_ context.Context, _ types.RecurrenceKind, anchor time.Time, cycle int) (time.Time, bool, error) {
	d, ok := m.occurrences[m.key(anchor, cycle)]
	return d, ok, nil
}

func (m *mockCalendar) HolidaysOnDate(_ context.Context, _ time.Time) ([]calendar.Holiday, error) {
	return nil, nil
}

// memLedger implements LedgerReader plus a record method mirroring the real
// ledger's cross-slot keyed matching.
type memLedger struct {
	rows []types.SendRecord
}

func (m *memLedger) HasSent(_ context.Context, subID int64, slot, cycle int, key string, windowDays int) (bool, error) {
	for _, r := range m.rows {
		if r.SubscriptionID != subID || r.Cycle != cycle || r.WindowDays != windowDays {
			continue
		}
		if r.OccurrenceKey != "" && r.OccurrenceKey == key {
			return true, nil
		}
		if r.OccurrenceKey == "" && r.Slot == slot {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) record(c Candidate) {
	m.rows = append(m.rows, types.SendRecord{
		SubscriptionID: c.Subscription.ID,
		Slot:           c.Entry.Slot,
		Cycle:          c.Cycle,
		OccurrenceKey:  c.OccurrenceKey,
		WindowDays:     c.WindowDays,
		SentAt:         time.Now().UTC(),
	})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)       {}
func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (n nopLogger) With(...any) types.Logger { return n }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func subscriber(id int64, slot int, kind types.RecurrenceKind, anchor time.Time) types.SubscriberRecurrences {
	return types.SubscriberRecurrences{
		Subscription: types.Subscription{ID: id, EmailAddress: "s@example.com", Status: types.StatusActive},
		Entries: map[int]types.RecurrenceEntry{
			slot: {Slot: slot, Kind: kind, AnchorDate: anchor, DisplayName: "Test"},
		},
	}
}

// The worked scenario: subscription S slot 3, anchor 2020-03-15, today
// 2025-03-10, observed 2025-03-13, diff 3. Selected under a 7-day window,
// rejected under a 1-day window, and never re-selected after dispatch.
func TestSelect_LookaheadScenario(t *testing.T) {
	anchor := date(2020, time.March, 15)
	today := date(2025, time.March, 10)

	cal := &mockCalendar{}
	cal.set(anchor, 2025, date(2025, time.March, 13))
	led := &memLedger{}
	eng := New(cal, led, nopLogger{})
	subs := []types.SubscriberRecurrences{subscriber(1, 3, types.KindYahrzeit, anchor)}
	empty := NewOptOutIndex(nil)

	// 7-day window: diff 3 qualifies.
	got, err := eng.Select(context.Background(), today, subs, empty, []int{7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].DiffDays)
	assert.Equal(t, 7, got[0].WindowDays)
	assert.Equal(t, 2025, got[0].Cycle)

	// 1-day window alone: diff 3 >= 1 is rejected.
	got1, err := eng.Select(context.Background(), today, subs, empty, []int{1})
	require.NoError(t, err)
	assert.Empty(t, got1)

	// After a successful dispatch, an identical run selects nothing.
	led.record(got[0])
	again, err := eng.Select(context.Background(), today, subs, empty, []int{7})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSelect_DiffBoundaries(t *testing.T) {
	anchor := date(2020, time.June, 1)
	cal := &mockCalendar{}
	cal.set(anchor, 2025, date(2025, time.June, 10))
	eng := New(cal, &memLedger{}, nopLogger{})
	subs := []types.SubscriberRecurrences{subscriber(1, 1, types.KindYahrzeit, anchor)}
	empty := NewOptOutIndex(nil)

	tests := []struct {
		name  string
		today time.Time
		want  int // selected count
	}{
		{"diff equals window is excluded", date(2025, time.June, 3), 0}, // diff 7
		{"diff window-1 is included", date(2025, time.June, 4), 1},      // diff 6
		{"diff zero is included", date(2025, time.June, 10), 1},         // diff 0
		{"yesterday is excluded", date(2025, time.June, 11), 0},         // diff -1
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eng.Select(context.Background(), tt.today, subs, empty, []int{7})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

// With both windows configured, a single (subscription, slot, cycle) is
// selected at most once per run, attributed to the tighter window.
func TestSelect_OverlappingWindowsSingleSelection(t *testing.T) {
	anchor := date(2020, time.June, 1)
	cal := &mockCalendar{}
	cal.set(anchor, 2025, date(2025, time.June, 10))
	eng := New(cal, &memLedger{}, nopLogger{})
	subs := []types.SubscriberRecurrences{subscriber(1, 1, types.KindYahrzeit, anchor)}

	// diff 0: qualifies under both 1 and 7.
	got, err := eng.Select(context.Background(), date(2025, time.June, 10), subs, NewOptOutIndex(nil), []int{7, 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].WindowDays, "the shorter window wins")
}

func TestSelect_RerunAfterDispatchSelectsNothing(t *testing.T) {
	anchor := date(2020, time.June, 1)
	cal := &mockCalendar{}
	cal.set(anchor, 2025, date(2025, time.June, 10))
	led := &memLedger{}
	eng := New(cal, led, nopLogger{})
	subs := []types.SubscriberRecurrences{subscriber(1, 1, types.KindYahrzeit, anchor)}
	today := date(2025, time.June, 10) // diff 0: both windows accept

	got, err := eng.Select(context.Background(), today, subs, NewOptOutIndex(nil), []int{7, 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, got[0].WindowDays)
	led.record(got[0])

	// Same today, updated ledger: the occurrence was sent under the 1-day
	// window and the 7-day window must not pick it back up.
	got, err = eng.Select(context.Background(), today, subs, NewOptOutIndex(nil), []int{7, 1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelect_OptOutHierarchy(t *testing.T) {
	anchor := date(2020, time.June, 1)
	observed := date(2025, time.June, 10)
	today := date(2025, time.June, 8)
	cal := &mockCalendar{}
	cal.set(anchor, 2025, observed)
	subs := []types.SubscriberRecurrences{subscriber(9, 3, types.KindYahrzeit, anchor)}
	key := types.OccurrenceKey(observed, types.KindYahrzeit)

	tests := []struct {
		name string
		outs []types.OptOut
		want int
	}{
		{"no optouts", nil, 1},
		{"subscription-level slot 0", []types.OptOut{{SubscriptionID: 9, Slot: 0}}, 0},
		{"slot-level", []types.OptOut{{SubscriptionID: 9, Slot: 3}}, 0},
		{"matching occurrence key", []types.OptOut{{SubscriptionID: 9, Slot: 3, OccurrenceKey: key}}, 0},
		// An opt-out keyed by a stale occurrence key no longer matches after
		// the underlying date was edited: sending resumes under the new key.
		{"stale occurrence key", []types.OptOut{{SubscriptionID: 9, Slot: 3, OccurrenceKey: "stale"}}, 1},
		{"other subscription", []types.OptOut{{SubscriptionID: 8, Slot: 0}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := New(cal, &memLedger{}, nopLogger{})
			got, err := eng.Select(context.Background(), today, subs, NewOptOutIndex(tt.outs), []int{7})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

// Two slots resolving to the same (observed date, kind) collapse to one
// candidate per run and one ledger record overall.
func TestSelect_OccurrenceKeyCollapse(t *testing.T) {
	a1 := date(2020, time.March, 15)
	a2 := date(2020, time.March, 16) // sundown-shifted duplicate of the same person
	observed := date(2025, time.March, 13)
	today := date(2025, time.March, 10)

	cal := &mockCalendar{}
	cal.set(a1, 2025, observed)
	cal.set(a2, 2025, observed)

	subs := []types.SubscriberRecurrences{{
		Subscription: types.Subscription{ID: 5, EmailAddress: "s@example.com"},
		Entries: map[int]types.RecurrenceEntry{
			2: {Slot: 2, Kind: types.KindYahrzeit, AnchorDate: a1},
			3: {Slot: 3, Kind: types.KindYahrzeit, AnchorDate: a2},
		},
	}}

	led := &memLedger{}
	eng := New(cal, led, nopLogger{})
	got, err := eng.Select(context.Background(), today, subs, NewOptOutIndex(nil), []int{7})
	require.NoError(t, err)
	require.Len(t, got, 1, "same key selects once per run")

	// After dispatch, neither slot is re-selected: keyed ledger rows match
	// across slots.
	led.record(got[0])
	again, err := eng.Select(context.Background(), today, subs, NewOptOutIndex(nil), []int{7})
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSelect_DecemberLooksIntoNextCycle(t *testing.T) {
	anchor := date(2020, time.January, 2)
	cal := &mockCalendar{}
	// No occurrence left in 2025; the next one falls on 2026-01-01.
	cal.set(anchor, 2026, date(2026, time.January, 1))

	eng := New(cal, &memLedger{}, nopLogger{})
	subs := []types.SubscriberRecurrences{subscriber(1, 1, types.KindYahrzeit, anchor)}

	got, err := eng.Select(context.Background(), date(2025, time.December, 28), subs, NewOptOutIndex(nil), []int{7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2026, got[0].Cycle)

	// Outside December the next cycle is not consulted.
	got, err = eng.Select(context.Background(), date(2025, time.November, 28), subs, NewOptOutIndex(nil), []int{7})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelect_CalculatorMissIsSilent(t *testing.T) {
	// Calendar has no entry for this anchor: expected miss, no candidate,
	// no error.
	eng := New(&mockCalendar{}, &memLedger{}, nopLogger{})
	subs := []types.SubscriberRecurrences{subscriber(1, 1, types.KindYahrzeit, date(2020, time.June, 1))}

	got, err := eng.Select(context.Background(), date(2025, time.June, 1), subs, NewOptOutIndex(nil), []int{7})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSelect_SunsetShiftReachesCalendar(t *testing.T) {
	anchor := date(2020, time.March, 15)
	shifted := date(2020, time.March, 16)
	cal := &mockCalendar{}
	cal.set(shifted, 2025, date(2025, time.March, 13))

	subs := []types.SubscriberRecurrences{{
		Subscription: types.Subscription{ID: 1, EmailAddress: "s@example.com"},
		Entries: map[int]types.RecurrenceEntry{
			1: {Slot: 1, Kind: types.KindYahrzeit, AnchorDate: anchor, ObservesAtSunset: true},
		},
	}}

	eng := New(cal, &memLedger{}, nopLogger{})
	got, err := eng.Select(context.Background(), date(2025, time.March, 10), subs, NewOptOutIndex(nil), []int{7})
	require.NoError(t, err)
	require.Len(t, got, 1, "the calendar must be consulted with the sundown-adjusted anchor")
}
