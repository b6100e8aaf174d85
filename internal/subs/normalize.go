// Package subs loads subscriptions and normalizes their stored recurrence
// encodings into canonical slot maps.
//
// Two historical encodings of a slot's anchor date coexist in storage:
// separate d{n}/m{n}/y{n} fields, and a single packed x{n} ISO string added
// later. The packed field wins when present and well-formed. A slot exists
// only when all three date components resolve; incomplete slots are skipped
// without halting the scan, since slot indices are assigned at creation and
// never reassigned (deleting an entry leaves a gap).
package subs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"luach/internal/types"
)

// packedDateLen is the exact length of a well-formed packed date (YYYY-MM-DD).
const packedDateLen = 10

// Normalize parses one subscription's stored recurrence JSON into a sparse
// slot map. An unparseable payload returns an error; callers log it at
// warning and treat the subscription as having zero entries. Individual
// malformed slots are silently dropped; a half-filled slot is a normal
// artifact of the legacy edit UI, not a fault.
func Normalize(raw []byte) (map[int]types.RecurrenceEntry, error) {
	if len(raw) == 0 {
		return map[int]types.RecurrenceEntry{}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, types.NewAppError(types.ErrCodeRecurrenceMalformed, "unparseable recurrence payload", err)
	}

	entries := make(map[int]types.RecurrenceEntry)
	for _, slot := range slotIndices(fields) {
		anchor, ok := resolveAnchor(fields, slot)
		if !ok {
			continue
		}
		kind := types.ParseRecurrenceKind(fieldString(fields, "t", slot))
		name := fieldString(fields, "n", slot)
		if name == "" {
			name = types.DefaultDisplayName(kind, slot)
		}
		entries[slot] = types.RecurrenceEntry{
			Slot:             slot,
			Kind:             kind,
			AnchorDate:       anchor,
			ObservesAtSunset: truthy(fields[key("s", slot)]),
			DisplayName:      name,
		}
	}
	return entries, nil
}

// MaxSlot returns the highest slot index holding a complete recurrence, or
// zero when none exists.
func MaxSlot(entries map[int]types.RecurrenceEntry) int {
	max := 0
	for slot := range entries {
		if slot > max {
			max = slot
		}
	}
	return max
}

// slotIndices discovers every slot index referenced by any recurrence field
// name. The stored object is a duck-typed sparse array; this is the one
// place the string keys are inspected; downstream code only ever sees the
// explicit slot map.
func slotIndices(fields map[string]any) []int {
	seen := make(map[int]bool)
	for k := range fields {
		if len(k) < 2 {
			continue
		}
		switch k[0] {
		case 'd', 'm', 'y', 'x', 't', 'n', 's':
		default:
			continue
		}
		n, err := strconv.Atoi(k[1:])
		if err != nil || n <= 0 {
			continue
		}
		seen[n] = true
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// resolveAnchor produces the canonical anchor date for a slot. The packed
// x{n} form takes precedence when well-formed; otherwise the legacy
// d{n}/m{n}/y{n} triple is used, and the slot is absent unless all three
// components are non-empty and parseable as a real calendar date.
func resolveAnchor(fields map[string]any, slot int) (time.Time, bool) {
	if packed := fieldString(fields, "x", slot); len(packed) == packedDateLen {
		if t, err := time.ParseInLocation("2006-01-02", packed, time.UTC); err == nil {
			return t, true
		}
	}

	ds := fieldString(fields, "d", slot)
	ms := fieldString(fields, "m", slot)
	ys := fieldString(fields, "y", slot)
	if ds == "" || ms == "" || ys == "" {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(ds)
	month, err2 := strconv.Atoi(ms)
	year, err3 := strconv.Atoi(ys)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || year < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject overflow dates like February 31, which time.Date silently rolls
	// into the next month.
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, false
	}
	return t, true
}

func key(prefix string, slot int) string {
	return fmt.Sprintf("%s%d", prefix, slot)
}

// fieldString coerces a stored field to a trimmed string. Legacy rows hold
// numbers for day/month/year; newer rows hold strings.
func fieldString(fields map[string]any, prefix string, slot int) string {
	v, ok := fields[key(prefix, slot)]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		if x {
			return "1"
		}
		return ""
	default:
		return ""
	}
}

// truthy interprets the after-sundown flag across its historical encodings:
// checkbox "on", "1", "true", "yes", a nonzero number, or a bare boolean.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "on", "true", "yes", "y":
			return true
		}
	}
	return false
}
