package digest

import (
	"context"
	"time"

	"luach/internal/calendar"
)

// Plan is the outcome of the send-day decision for one week.
type Plan struct {
	// SendDate is the chosen send day, UTC midnight. Zero when Skip is set.
	SendDate time.Time
	// WeekOf is the Saturday the digest covers.
	WeekOf time.Time
	// Skip means no workable send day exists this week.
	Skip bool
}

// PlanWeek decides when this week's digest goes out. The digest is sent on
// Thursday so subscribers see Friday's candle-lighting time a day ahead.
// When Thursday carries a major holiday the send moves to Wednesday, and
// when Wednesday does too it moves to Tuesday. If Tuesday is also a major
// holiday the whole week is skipped rather than sent so early it would be
// stale.
func PlanWeek(ctx context.Context, cal calendar.Calendar, today time.Time) (Plan, error) {
	weekOf := upcomingSaturday(today)
	thursday := weekOf.AddDate(0, 0, -2)

	for back := 0; back <= 2; back++ {
		day := thursday.AddDate(0, 0, -back)
		holidays, err := cal.HolidaysOnDate(ctx, day)
		if err != nil {
			return Plan{}, err
		}
		if !calendar.HasMajorHoliday(holidays) {
			return Plan{SendDate: day, WeekOf: weekOf}, nil
		}
	}
	return Plan{WeekOf: weekOf, Skip: true}, nil
}

// ShouldSendToday reports whether today is the planned send day. The
// shabbat worker runs daily and exits immediately on every other day.
func ShouldSendToday(ctx context.Context, cal calendar.Calendar, today time.Time) (Plan, bool, error) {
	plan, err := PlanWeek(ctx, cal, today)
	if err != nil {
		return Plan{}, false, err
	}
	if plan.Skip {
		return plan, false, nil
	}
	todayMidnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return plan, plan.SendDate.Equal(todayMidnight), nil
}
