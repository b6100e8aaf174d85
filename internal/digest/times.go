package digest

import (
	"context"
	"strings"
	"time"

	"github.com/hebcal/hdate"
	"github.com/hebcal/hebcal-go/event"
	"github.com/hebcal/hebcal-go/hebcal"
	"github.com/hebcal/hebcal-go/zmanim"

	"luach/internal/types"
)

// WeekTimes holds the per-location facts one digest renders.
type WeekTimes struct {
	CandleLighting time.Time
	Havdalah       time.Time
	Parsha         string
	Holidays       []string
}

// TimesSource computes a week's times for a subscriber's location.
// Satisfied by HebcalTimes; tests provide fakes.
type TimesSource interface {
	WeekTimes(ctx context.Context, sub types.DigestSubscriber, weekOf time.Time) (WeekTimes, error)
}

// HebcalTimes derives candle-lighting and havdalah times from the location's
// coordinates and per-location offsets.
type HebcalTimes struct {
	// IL selects the Israel holiday and reading scheme.
	IL bool
}

// WeekTimes computes Friday candle lighting, Saturday havdalah, the weekly
// reading and any holiday names for the week ending on weekOf.
func (h HebcalTimes) WeekTimes(_ context.Context, sub types.DigestSubscriber, weekOf time.Time) (WeekTimes, error) {
	friday := weekOf.AddDate(0, 0, -1)
	loc := zmanim.NewLocation(sub.LocationName, sub.CountryCode, sub.Latitude, sub.Longitude, 0, sub.TimeZoneID)

	opts := hebcal.CalOptions{
		Start:              hdate.FromGregorian(friday.Year(), friday.Month(), friday.Day()),
		End:                hdate.FromGregorian(weekOf.Year(), weekOf.Month(), weekOf.Day()),
		Location:           &loc,
		CandleLighting:     true,
		CandleLightingMins: sub.CandleMins,
		HavdalahMins:       sub.HavdalahMins,
		Sedrot:             true,
		IL:                 h.IL,
	}
	events, err := hebcal.HebrewCalendar(&opts)
	if err != nil {
		return WeekTimes{}, &types.AppError{
			Code:    types.ErrCodeInternalUnexpected,
			Message: "calendar computation failed",
			Err:     err,
		}
	}

	var wt WeekTimes
	for _, ev := range events {
		flags := ev.GetFlags()
		switch {
		case flags&event.LIGHT_CANDLES != 0:
			if timed, ok := ev.(hebcal.TimedEvent); ok && wt.CandleLighting.IsZero() {
				wt.CandleLighting = timed.EventTime
			}
		case flags&event.LIGHT_CANDLES_TZEIS != 0 || strings.HasPrefix(ev.Render("en"), "Havdalah"):
			if timed, ok := ev.(hebcal.TimedEvent); ok {
				wt.Havdalah = timed.EventTime
			}
		case flags&event.PARSHA_HASHAVUA != 0:
			wt.Parsha = ev.Render("en")
		case flags&event.CHAG != 0:
			wt.Holidays = append(wt.Holidays, ev.Render("en"))
		}
	}
	return wt, nil
}
