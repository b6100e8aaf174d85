package compose

import (
	"fmt"
	"strings"
	"time"
)

// icsEvent describes one all-day calendar entry.
type icsEvent struct {
	UID     string
	Date    time.Time
	Summary string
}

// buildICS renders a minimal single-event iCalendar document. Lines use CRLF
// endings as RFC 5545 requires; the event is all-day so only DATE values
// appear.
func buildICS(ev icsEvent, now time.Time) []byte {
	var b strings.Builder
	w := func(line string) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	w("BEGIN:VCALENDAR")
	w("VERSION:2.0")
	w("PRODID:-//luach//reminder//EN")
	w("CALSCALE:GREGORIAN")
	w("METHOD:PUBLISH")
	w("BEGIN:VEVENT")
	w("UID:" + ev.UID)
	w("DTSTAMP:" + now.UTC().Format("20060102T150405Z"))
	w("DTSTART;VALUE=DATE:" + ev.Date.Format("20060102"))
	w("DTEND;VALUE=DATE:" + ev.Date.AddDate(0, 0, 1).Format("20060102"))
	w("SUMMARY:" + escapeICSText(ev.Summary))
	w("TRANSP:TRANSPARENT")
	w("END:VEVENT")
	w("END:VCALENDAR")
	return []byte(b.String())
}

// escapeICSText escapes the characters RFC 5545 reserves in TEXT values.
func escapeICSText(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}

// uidFor builds a stable per-occurrence UID so re-imports replace rather
// than duplicate the event.
func uidFor(occurrenceKey string) string {
	return fmt.Sprintf("%s@luach", occurrenceKey)
}
