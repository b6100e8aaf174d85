// Package types defines the shared domain model for the luach reminder
// mailer: subscriptions and their recurring Hebrew-calendar entries, computed
// occurrences, the send ledger rows that enforce at-most-once delivery, and
// opt-out records.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SubscriptionStatus is the lifecycle state of a subscription. Only active
// subscriptions are ever loaded by the batch workers.
type SubscriptionStatus string

const (
	StatusActive       SubscriptionStatus = "active"
	StatusUnsubscribed SubscriptionStatus = "unsubscribed"
	StatusBounced      SubscriptionStatus = "bounced"
)

// RecurrenceKind classifies a recurring entry. The stored type field is
// free text; ParseRecurrenceKind maps it by first character,
// case-insensitively, defaulting to Yahrzeit.
type RecurrenceKind string

const (
	KindYahrzeit    RecurrenceKind = "Yahrzeit"
	KindBirthday    RecurrenceKind = "Birthday"
	KindAnniversary RecurrenceKind = "Anniversary"
	KindOther       RecurrenceKind = "Other"
)

// ParseRecurrenceKind maps a raw type field to a RecurrenceKind. Any
// unrecognized or empty value is a Yahrzeit; this matches decades of stored
// rows where the field was optional.
func ParseRecurrenceKind(raw string) RecurrenceKind {
	if raw == "" {
		return KindYahrzeit
	}
	switch raw[0] {
	case 'b', 'B':
		return KindBirthday
	case 'a', 'A':
		return KindAnniversary
	case 'o', 'O':
		return KindOther
	default:
		return KindYahrzeit
	}
}

// Subscription is one subscriber's durable record. RecurrenceJSON holds the
// raw per-slot encoding exactly as stored; internal/subs normalizes it.
type Subscription struct {
	ID           int64
	EmailAddress string
	Status       SubscriptionStatus
	// RecurrenceJSON is the stored JSON object holding the slot-indexed
	// fields (d3/m3/y3, x3, t3, n3, s3, ...). Opaque at this layer.
	RecurrenceJSON []byte
	CreatedAt      time.Time
}

// RecurrenceEntry is one normalized recurring anniversary within a
// subscription. Entries are keyed by a small positive slot index that is
// assigned at creation and never reassigned, so slot gaps are legal.
type RecurrenceEntry struct {
	Slot             int
	Kind             RecurrenceKind
	AnchorDate       time.Time // original Gregorian date, immutable
	ObservesAtSunset bool      // "after sundown": shift anchor +1 day before computing
	DisplayName      string
}

// EffectiveAnchor returns the anchor date adjusted for the after-sundown
// convention. The calendar adapter always receives this adjusted date.
func (e RecurrenceEntry) EffectiveAnchor() time.Time {
	if e.ObservesAtSunset {
		return e.AnchorDate.AddDate(0, 0, 1)
	}
	return e.AnchorDate
}

// SubscriberRecurrences pairs a subscription with its normalized slot map.
type SubscriberRecurrences struct {
	Subscription Subscription
	// Entries is sparse: keys are slot indices, and only complete slots
	// (day, month and year all resolved) are present.
	Entries map[int]RecurrenceEntry
}

// OccurrenceKey derives the content-addressed identity of one occurrence:
// a hex SHA-256 over the observed date (ISO form) and the kind. Two entries
// that resolve to the same date and kind in the same cycle intentionally
// collapse to the same key, which is how an edited entry that still lands on
// an already-sent occurrence gets deduplicated.
func OccurrenceKey(observed time.Time, kind RecurrenceKind) string {
	sum := sha256.Sum256([]byte(observed.Format("2006-01-02") + "|" + string(kind)))
	return hex.EncodeToString(sum[:])
}

// SendRecord is one persisted "already sent" fact. Rows are read-only after
// insert; retention is enforced by age filters at query time, not deletes.
type SendRecord struct {
	ID             string
	SubscriptionID int64
	Slot           int
	Cycle          int // target calendar year the occurrence was computed against
	OccurrenceKey  string
	WindowDays     int // lookahead window this send satisfied
	SentAt         time.Time
}

// OptOut suppresses future sends. Scope widens as fields empty out:
//
//	Slot == 0                  -> whole subscription
//	Slot > 0, OccurrenceKey "" -> every cycle of that slot
//	Slot > 0, OccurrenceKey set -> only that computed identity; editing the
//	                              underlying date away from it resumes sends
type OptOut struct {
	SubscriptionID int64
	Slot           int
	OccurrenceKey  string
	UpdatedAt      time.Time
}

// DigestSubscriber is one weekly-digest recipient resolved to a geographic
// location. Candle and havdalah minute offsets are per-subscriber settings.
type DigestSubscriber struct {
	EmailAddress string
	Name         string
	LocationID   string
	LocationName string
	CountryCode  string
	Latitude     float64
	Longitude    float64
	TimeZoneID   string
	CandleMins   int
	HavdalahMins int
}

// Message is a transport-ready composed email. The reminder engine treats it
// as opaque: it is produced by a Composer and handed to an EmailProvider
// without inspection.
type Message struct {
	Recipient string
	Subject   string
	BodyText  string
	BodyHTML  string
	Headers   map[string]string
	// ICS is an optional iCalendar attachment (anniversary reminders only).
	ICS []byte
}

// SendInput is the provider-facing shape of a send request.
type SendInput struct {
	From        EmailAddress
	To          string
	Subject     string
	BodyText    string
	BodyHTML    string
	Headers     map[string]string
	ICS         []byte
	ReferenceID string
}

// EmailAddress is a display name plus address pair.
type EmailAddress struct {
	Name    string
	Address string
}

// DaysBetween returns the whole-day difference to - from, ignoring the time
// of day of both arguments. Both are interpreted in their own locations'
// civil dates; the subtraction happens on UTC-normalized midnights.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f) / (24 * time.Hour))
}

// DefaultDisplayName is the generated placeholder for a slot whose name field
// is blank: "Person{slot}" for yahrzeits, "Untitled{slot}" otherwise.
func DefaultDisplayName(kind RecurrenceKind, slot int) string {
	if kind == KindYahrzeit {
		return fmt.Sprintf("Person%d", slot)
	}
	return fmt.Sprintf("Untitled%d", slot)
}
