// Package compose renders outgoing reminder mail. Composition is pure:
// given a candidate it deterministically produces a message, so the same
// occurrence always yields the same subject, body and calendar attachment.
package compose

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"luach/internal/eligibility"
	"luach/internal/optout"
	"luach/internal/types"
)

// ReminderComposer builds anniversary reminder emails with an attached
// all-day calendar event and scoped one-click opt-out links.
type ReminderComposer struct {
	tokens    *optout.TokenCodec
	publicURL string
	now       func() time.Time
}

// NewReminderComposer creates a ReminderComposer. publicURL is the external
// base of the opt-out API, without a trailing slash.
func NewReminderComposer(tokens *optout.TokenCodec, publicURL string) *ReminderComposer {
	return &ReminderComposer{
		tokens:    tokens,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
	}
}

type reminderData struct {
	Name           string
	KindLabel      string
	ObservedDate   string
	DiffPhrase     string
	Years          int
	ShowYears      bool
	SkipOnceURL    string
	MuteSlotURL    string
	UnsubscribeURL string
}

var reminderText = texttemplate.Must(texttemplate.New("reminder").Parse(
	`{{.KindLabel}} reminder

The {{.KindLabel}} of {{.Name}} falls on {{.ObservedDate}}, {{.DiffPhrase}}.
{{if .ShowYears}}This is year {{.Years}}.
{{end}}
A calendar event is attached.

Skip just this reminder: {{.SkipOnceURL}}
Stop reminders for {{.Name}}: {{.MuteSlotURL}}
Unsubscribe from all reminders: {{.UnsubscribeURL}}
`))

var reminderHTML = htmltemplate.Must(htmltemplate.New("reminder").Parse(
	`<html><body>
<h2>{{.KindLabel}} reminder</h2>
<p>The {{.KindLabel}} of <strong>{{.Name}}</strong> falls on
<strong>{{.ObservedDate}}</strong>, {{.DiffPhrase}}.</p>
{{if .ShowYears}}<p>This is year {{.Years}}.</p>{{end}}
<p>A calendar event is attached.</p>
<p style="font-size:12px;color:#666">
<a href="{{.SkipOnceURL}}">Skip just this reminder</a> &middot;
<a href="{{.MuteSlotURL}}">Stop reminders for {{.Name}}</a> &middot;
<a href="{{.UnsubscribeURL}}">Unsubscribe from all reminders</a>
</p>
</body></html>
`))

// Compose renders the reminder for one eligible candidate.
func (c *ReminderComposer) Compose(_ context.Context, cand eligibility.Candidate) (types.Message, error) {
	kind := kindLabel(cand.Entry.Kind)
	years := cand.Cycle - cand.Entry.AnchorDate.Year()

	data := reminderData{
		Name:           cand.Entry.DisplayName,
		KindLabel:      kind,
		ObservedDate:   cand.ObservedDate.Format("Monday, January 2, 2006"),
		DiffPhrase:     diffPhrase(cand.DiffDays),
		Years:          years,
		ShowYears:      years > 0,
		SkipOnceURL:    c.optOutURL(cand.Subscription.ID, cand.Entry.Slot, cand.OccurrenceKey),
		MuteSlotURL:    c.optOutURL(cand.Subscription.ID, cand.Entry.Slot, ""),
		UnsubscribeURL: c.optOutURL(cand.Subscription.ID, 0, ""),
	}

	var text, html bytes.Buffer
	if err := reminderText.Execute(&text, data); err != nil {
		return types.Message{}, composeError(err)
	}
	if err := reminderHTML.Execute(&html, data); err != nil {
		return types.Message{}, composeError(err)
	}

	subject := fmt.Sprintf("%s of %s: %s",
		kind, cand.Entry.DisplayName, cand.ObservedDate.Format("Monday, January 2"))

	return types.Message{
		Recipient: cand.Recipient(),
		Subject:   subject,
		BodyText:  text.String(),
		BodyHTML:  html.String(),
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + data.UnsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
			"X-Reference-ID":        cand.OccurrenceKey,
		},
		ICS: buildICS(icsEvent{
			UID:     uidFor(cand.OccurrenceKey),
			Date:    cand.ObservedDate,
			Summary: fmt.Sprintf("%s of %s", kind, cand.Entry.DisplayName),
		}, c.now()),
	}, nil
}

func (c *ReminderComposer) optOutURL(subID int64, slot int, occurrenceKey string) string {
	token := c.tokens.Encode(subID, slot, occurrenceKey)
	return c.publicURL + "/unsubscribe?token=" + url.QueryEscape(token)
}

func kindLabel(k types.RecurrenceKind) string {
	switch k {
	case types.KindBirthday:
		return "Birthday"
	case types.KindAnniversary:
		return "Anniversary"
	case types.KindOther:
		return "Remembrance"
	default:
		return "Yahrzeit"
	}
}

func diffPhrase(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}

func composeError(err error) error {
	return &types.AppError{
		Code:    types.ErrCodeInternalUnexpected,
		Message: "failed to render reminder",
		Err:     err,
	}
}
