// Package digest implements the weekly location digest: one email per
// subscriber each week carrying that week's candle-lighting and havdalah
// times for their location, plus the Torah reading. The engine normally
// sends on Thursday and shifts earlier when major holidays occupy the usual
// send day.
package digest

import (
	"sort"
	"time"

	"luach/internal/types"
)

// Item is one dispatchable digest send: a subscriber paired with the
// Saturday its digest covers.
type Item struct {
	Subscriber types.DigestSubscriber
	WeekOf     time.Time // the Saturday this digest describes, UTC midnight
}

// Recipient returns the destination address.
func (i Item) Recipient() string {
	return i.Subscriber.EmailAddress
}

// SortEastToWest orders subscribers easternmost first, so locations whose
// Shabbat starts earliest receive their digest earliest within the run.
// Ties break west-to-east by latitude south-first, then by location name,
// keeping the order deterministic for identical coordinates.
func SortEastToWest(subs []types.DigestSubscriber) {
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		if a.Longitude != b.Longitude {
			return a.Longitude > b.Longitude
		}
		if a.Latitude != b.Latitude {
			return a.Latitude < b.Latitude
		}
		return a.LocationName < b.LocationName
	})
}

// upcomingSaturday returns the Saturday on or after d, at UTC midnight.
func upcomingSaturday(d time.Time) time.Time {
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(time.Saturday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}
