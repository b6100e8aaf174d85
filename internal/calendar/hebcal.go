package calendar

import (
	"context"
	"time"

	"github.com/hebcal/hdate"
	"github.com/hebcal/hebcal-go/event"
	"github.com/hebcal/hebcal-go/hebcal"

	"luach/internal/types"
)

// Hebcal implements Calendar on top of github.com/hebcal/hebcal-go.
type Hebcal struct {
	// IL selects the Israel holiday scheme (single-day yom tov).
	IL bool
}

// NewHebcal creates a Hebcal calendar.
func NewHebcal(il bool) *Hebcal {
	return &Hebcal{IL: il}
}

// Occurrence computes the observed date for the recurrence in the target
// Gregorian year. Yahrzeits follow the halachic yahrzeit rules (Adar and
// 30th-of-month adjustments); birthdays and anniversaries follow the
// Hebrew-birthday rules. The underlying functions are keyed by Hebrew year,
// so both Hebrew years overlapping the target cycle are tried and the one
// whose result lands in the cycle is returned.
func (h *Hebcal) Occurrence(_ context.Context, kind types.RecurrenceKind, anchor time.Time, cycle int) (time.Time, bool, error) {
	anchorHD := hdate.FromTime(anchor)
	base := hdate.FromGregorian(cycle, time.January, 1).Year()
	for _, hyear := range []int{base, base + 1} {
		var (
			hd  hdate.HDate
			err error
		)
		switch kind {
		case types.KindYahrzeit:
			hd, err = hdate.GetYahrzeit(hyear, anchorHD)
		default:
			hd, err = hdate.GetBirthdayOrAnniversary(hyear, anchorHD)
		}
		if err != nil {
			// No occurrence in this Hebrew year (e.g. the anniversary
			// precedes the event, or a leap-month date in a common year).
			continue
		}
		g := hd.Gregorian()
		if g.Year() == cycle {
			return time.Date(g.Year(), g.Month(), g.Day(), 0, 0, 0, 0, time.UTC), true, nil
		}
	}
	return time.Time{}, false, nil
}

// HolidaysOnDate returns the holidays falling on the given civil date. An
// event is major when it carries the CHAG flag, i.e. a yom tov with work
// restrictions.
func (h *Hebcal) HolidaysOnDate(_ context.Context, d time.Time) ([]Holiday, error) {
	hd := hdate.FromGregorian(d.Year(), d.Month(), d.Day())
	events, err := hebcal.HebrewCalendar(&hebcal.CalOptions{
		Start: hd,
		End:   hd,
		IL:    h.IL,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "holiday lookup failed", err)
	}

	out := make([]Holiday, 0, len(events))
	for _, ev := range events {
		out = append(out, Holiday{
			Name:  ev.Render("en"),
			Major: ev.GetFlags()&event.CHAG != 0,
		})
	}
	return out, nil
}
