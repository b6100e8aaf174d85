// Package bounce consumes asynchronous delivery feedback and suppresses the
// affected addresses. SES publishes bounce and complaint notifications to an
// SNS topic; an SQS queue subscribed to that topic is drained by the bounce
// worker.
package bounce

import (
	"encoding/json"
	"fmt"
	"time"
)

// FeedbackType classifies a feedback event.
type FeedbackType string

const (
	FeedbackBounce    FeedbackType = "bounce"
	FeedbackComplaint FeedbackType = "complaint"
)

// Event is a normalized suppression request for one address.
type Event struct {
	ProviderMessageID string
	EmailAddress      string
	Reason            string
	Type              FeedbackType
	Timestamp         time.Time
}

// snsEnvelope is the SNS wrapper delivered to the queue. Only the Message
// payload matters; it holds the JSON-encoded SES notification.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type sesNotification struct {
	NotificationType string        `json:"notificationType"`
	Bounce           *sesBounce    `json:"bounce,omitempty"`
	Complaint        *sesComplaint `json:"complaint,omitempty"`
	Mail             sesMail       `json:"mail"`
}

type sesBounce struct {
	BounceType        string         `json:"bounceType"`
	BounceSubType     string         `json:"bounceSubType"`
	BouncedRecipients []sesRecipient `json:"bouncedRecipients"`
	Timestamp         string         `json:"timestamp"`
}

type sesComplaint struct {
	ComplainedRecipients  []sesRecipient `json:"complainedRecipients"`
	ComplaintFeedbackType string         `json:"complaintFeedbackType"`
	Timestamp             string         `json:"timestamp"`
}

type sesRecipient struct {
	EmailAddress   string `json:"emailAddress"`
	DiagnosticCode string `json:"diagnosticCode"`
}

type sesMail struct {
	MessageID string `json:"messageId"`
}

// ParseFeedback converts one queue message body into suppression events.
// Transient bounces return an empty slice, not an error: SES retries those
// itself and the address may still be good. Unknown notification types are
// likewise skipped so topic configuration changes do not poison the queue.
func ParseFeedback(body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("bounce: empty queue message")
	}

	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("bounce: malformed SNS envelope: %w", err)
	}
	if env.Message == "" {
		return nil, fmt.Errorf("bounce: SNS envelope has no message")
	}

	var notif sesNotification
	if err := json.Unmarshal([]byte(env.Message), &notif); err != nil {
		return nil, fmt.Errorf("bounce: malformed SES notification: %w", err)
	}

	switch notif.NotificationType {
	case "Bounce":
		return parseBounce(notif)
	case "Complaint":
		return parseComplaint(notif)
	default:
		return nil, nil
	}
}

func parseBounce(notif sesNotification) ([]Event, error) {
	if notif.Bounce == nil {
		return nil, fmt.Errorf("bounce: bounce notification missing details")
	}
	// SES retries transient bounces on its own.
	if notif.Bounce.BounceType != "Permanent" {
		return nil, nil
	}

	ts := parseTimestamp(notif.Bounce.Timestamp)
	events := make([]Event, 0, len(notif.Bounce.BouncedRecipients))
	for _, r := range notif.Bounce.BouncedRecipients {
		if r.EmailAddress == "" {
			continue
		}
		events = append(events, Event{
			ProviderMessageID: notif.Mail.MessageID,
			EmailAddress:      r.EmailAddress,
			Reason:            r.DiagnosticCode,
			Type:              FeedbackBounce,
			Timestamp:         ts,
		})
	}
	return events, nil
}

func parseComplaint(notif sesNotification) ([]Event, error) {
	if notif.Complaint == nil {
		return nil, fmt.Errorf("bounce: complaint notification missing details")
	}

	ts := parseTimestamp(notif.Complaint.Timestamp)
	events := make([]Event, 0, len(notif.Complaint.ComplainedRecipients))
	for _, r := range notif.Complaint.ComplainedRecipients {
		if r.EmailAddress == "" {
			continue
		}
		events = append(events, Event{
			ProviderMessageID: notif.Mail.MessageID,
			EmailAddress:      r.EmailAddress,
			Reason:            notif.Complaint.ComplaintFeedbackType,
			Type:              FeedbackComplaint,
			Timestamp:         ts,
		})
	}
	return events, nil
}

func parseTimestamp(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return ts
}
