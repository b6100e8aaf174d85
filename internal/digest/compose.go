package digest

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"luach/internal/optout"
	"luach/internal/types"
)

// Composer renders digest emails. Subscribers sharing a location and the
// same lighting offsets get identical times, so the expensive astronomical
// computation is memoized per (location, candle offset, havdalah offset)
// within one run. The dispatcher is sequential, so no locking is needed.
type Composer struct {
	times     TimesSource
	tokens    *optout.TokenCodec
	publicURL string
	memo      map[timesKey]WeekTimes
}

type timesKey struct {
	locationID   string
	candleMins   int
	havdalahMins int
}

// NewComposer creates a digest Composer.
func NewComposer(times TimesSource, tokens *optout.TokenCodec, publicURL string) *Composer {
	return &Composer{
		times:     times,
		tokens:    tokens,
		publicURL: strings.TrimRight(publicURL, "/"),
		memo:      make(map[timesKey]WeekTimes),
	}
}

type digestData struct {
	Name           string
	LocationName   string
	WeekOf         string
	CandleLighting string
	Havdalah       string
	Parsha         string
	Holidays       []string
	UnsubscribeURL string
}

var digestText = texttemplate.Must(texttemplate.New("digest").Parse(
	`Shabbat times for {{.LocationName}}, week of {{.WeekOf}}

Candle lighting: {{.CandleLighting}}
Havdalah: {{.Havdalah}}
{{if .Parsha}}Torah reading: {{.Parsha}}
{{end}}{{range .Holidays}}Holiday: {{.}}
{{end}}
Unsubscribe: {{.UnsubscribeURL}}
`))

var digestHTML = htmltemplate.Must(htmltemplate.New("digest").Parse(
	`<html><body>
<h2>Shabbat times for {{.LocationName}}</h2>
<p>Week of {{.WeekOf}}</p>
<table>
<tr><td>Candle lighting</td><td><strong>{{.CandleLighting}}</strong></td></tr>
<tr><td>Havdalah</td><td><strong>{{.Havdalah}}</strong></td></tr>
{{if .Parsha}}<tr><td>Torah reading</td><td>{{.Parsha}}</td></tr>{{end}}
{{range .Holidays}}<tr><td>Holiday</td><td>{{.}}</td></tr>{{end}}
</table>
<p style="font-size:12px;color:#666">
<a href="{{.UnsubscribeURL}}">Unsubscribe</a>
</p>
</body></html>
`))

// Compose renders the digest for one subscriber.
func (c *Composer) Compose(ctx context.Context, item Item) (types.Message, error) {
	sub := item.Subscriber

	key := timesKey{
		locationID:   sub.LocationID,
		candleMins:   sub.CandleMins,
		havdalahMins: sub.HavdalahMins,
	}
	wt, ok := c.memo[key]
	if !ok {
		var err error
		wt, err = c.times.WeekTimes(ctx, sub, item.WeekOf)
		if err != nil {
			return types.Message{}, err
		}
		c.memo[key] = wt
	}

	token := c.tokens.Encode(0, 0, "digest:"+sub.EmailAddress)
	unsubURL := c.publicURL + "/unsubscribe?token=" + url.QueryEscape(token)

	data := digestData{
		Name:           sub.Name,
		LocationName:   sub.LocationName,
		WeekOf:         item.WeekOf.Format("January 2, 2006"),
		CandleLighting: formatLocalTime(wt.CandleLighting),
		Havdalah:       formatLocalTime(wt.Havdalah),
		Parsha:         wt.Parsha,
		Holidays:       wt.Holidays,
		UnsubscribeURL: unsubURL,
	}

	var text, html bytes.Buffer
	if err := digestText.Execute(&text, data); err != nil {
		return types.Message{}, renderError(err)
	}
	if err := digestHTML.Execute(&html, data); err != nil {
		return types.Message{}, renderError(err)
	}

	return types.Message{
		Recipient: sub.EmailAddress,
		Subject:   fmt.Sprintf("Shabbat times for %s: %s", sub.LocationName, item.WeekOf.Format("January 2")),
		BodyText:  text.String(),
		BodyHTML:  html.String(),
		Headers: map[string]string{
			"List-Unsubscribe":      "<" + unsubURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
			"X-Reference-ID":        fmt.Sprintf("digest-%s-%s", sub.LocationID, item.WeekOf.Format("2006-01-02")),
		},
	}, nil
}

func formatLocalTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.Format("3:04 PM")
}

func renderError(err error) error {
	return &types.AppError{
		Code:    types.ErrCodeInternalUnexpected,
		Message: "failed to render digest",
		Err:     err,
	}
}
