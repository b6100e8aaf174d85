// Package calendar defines the narrow boundary to the lunisolar occurrence
// calculator. The reminder engine depends only on the interfaces here; the
// hebcal-go adapter lives alongside so the heavy calendar math never leaks
// into eligibility logic.
package calendar

import (
	"context"
	"time"

	"luach/internal/types"
)

// Holiday is one calendar event falling on a queried date. Major marks yom
// tov days that suppress or shift the weekly digest.
type Holiday struct {
	Name  string
	Major bool
}

// Calendar computes concrete occurrence dates for recurring entries and
// answers holiday lookups. Implementations must be pure with respect to
// their inputs: the same (kind, anchor, cycle) always yields the same date.
type Calendar interface {
	// Occurrence maps a recurrence to its observed date in the target
	// cycle (calendar year). ok is false when the recurrence does not land
	// in that cycle, e.g. an Adar II anniversary in a non-leap year; that
	// is an expected miss, not an error.
	Occurrence(ctx context.Context, kind types.RecurrenceKind, anchor time.Time, cycle int) (observed time.Time, ok bool, err error)

	// HolidaysOnDate returns the holidays falling on the given civil date.
	HolidaysOnDate(ctx context.Context, d time.Time) ([]Holiday, error)
}

// HasMajorHoliday reports whether any holiday on the date is major.
func HasMajorHoliday(hols []Holiday) bool {
	for _, h := range hols {
		if h.Major {
			return true
		}
	}
	return false
}
