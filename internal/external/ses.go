package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"luach/internal/types"
)

// SESAPI defines the subset of the SES v2 client used by SESClient.
// Extracted for testability.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig holds the configuration for creating an SESClient.
type SESClientConfig struct {
	// ConfigSetName is the SES configuration set for bounce/complaint
	// tracking. Optional.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient implements EmailProvider using AWS SES v2. Authentication is
// IAM-role based, and the SDK carries its own retry logic, so the client is
// not routed through BaseClient.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates an SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESClientWithAPI creates an SESClient with a pre-built SESAPI, useful
// for tests with a mock.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{
		api:           api,
		configSetName: cfg.ConfigSetName,
		logger:        logger,
	}
}

// Send transmits an email via SES SendEmail. Messages without an attachment
// use simple content (Subject, Body.Html, Body.Text); messages carrying an
// iCalendar attachment are assembled into a raw MIME multipart.
//
// Error mapping:
//   - MessageRejected -> ErrCodeEmailBlocked (terminal; do not retry)
//   - TooManyRequestsException -> ErrCodeUpstreamRateLimited
//   - SendingPausedException -> ErrCodeUpstreamUnavailable
//   - other -> ErrCodeUpstreamEmailProvider
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	emailInput := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatFrom(input.From)),
		Destination: &sestypes.Destination{
			ToAddresses: []string{input.To},
		},
	}

	if len(input.ICS) > 0 {
		raw, err := buildRawMessage(input)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to assemble MIME message", err)
		}
		emailInput.Content = &sestypes.EmailContent{
			Raw: &sestypes.RawMessage{Data: raw},
		}
	} else {
		emailInput.Content = &sestypes.EmailContent{Simple: simpleMessage(input)}
	}

	if s.configSetName != "" {
		emailInput.ConfigurationSetName = aws.String(s.configSetName)
	}
	if input.ReferenceID != "" {
		emailInput.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("ReferenceID"),
			Value: aws.String(input.ReferenceID),
		}}
	}

	result, err := s.api.SendEmail(ctx, emailInput)
	if err != nil {
		return "", mapSESError(err)
	}

	msgID := ""
	if result.MessageId != nil {
		msgID = *result.MessageId
	}
	return msgID, nil
}

func simpleMessage(input types.SendInput) *sestypes.Message {
	msg := &sestypes.Message{
		Subject: &sestypes.Content{
			Data:    aws.String(input.Subject),
			Charset: aws.String("UTF-8"),
		},
		Body: &sestypes.Body{},
	}
	if input.BodyHTML != "" {
		msg.Body.Html = &sestypes.Content{
			Data:    aws.String(input.BodyHTML),
			Charset: aws.String("UTF-8"),
		}
	}
	if input.BodyText != "" {
		msg.Body.Text = &sestypes.Content{
			Data:    aws.String(input.BodyText),
			Charset: aws.String("UTF-8"),
		}
	}
	if len(input.Headers) > 0 {
		keys := make([]string, 0, len(input.Headers))
		for k := range input.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg.Headers = append(msg.Headers, sestypes.MessageHeader{
				Name:  aws.String(k),
				Value: aws.String(input.Headers[k]),
			})
		}
	}
	return msg
}

// buildRawMessage assembles a multipart/mixed MIME message with text and
// HTML alternatives plus a text/calendar attachment.
func buildRawMessage(input types.SendInput) ([]byte, error) {
	var buf bytes.Buffer

	const mixedBoundary = "luach-mixed-0001"
	const altBoundary = "luach-alt-0001"

	fmt.Fprintf(&buf, "From: %s\r\n", formatFrom(input.From))
	fmt.Fprintf(&buf, "To: %s\r\n", input.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", input.Subject))
	keys := make([]string, 0, len(input.Headers))
	for k := range input.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, input.Headers[k])
	}
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixedBoundary)

	fmt.Fprintf(&buf, "--%s\r\n", mixedBoundary)
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary)

	if input.BodyText != "" {
		fmt.Fprintf(&buf, "--%s\r\n", altBoundary)
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(input.BodyText)
		buf.WriteString("\r\n")
	}
	if input.BodyHTML != "" {
		fmt.Fprintf(&buf, "--%s\r\n", altBoundary)
		buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(input.BodyHTML)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", altBoundary)

	fmt.Fprintf(&buf, "--%s\r\n", mixedBoundary)
	buf.WriteString("Content-Type: text/calendar; method=PUBLISH; charset=\"UTF-8\"\r\n")
	buf.WriteString("Content-Disposition: attachment; filename=\"event.ics\"\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64Wrapped(&buf, input.ICS)
	fmt.Fprintf(&buf, "--%s--\r\n", mixedBoundary)

	return buf.Bytes(), nil
}

// writeBase64Wrapped emits base64 content folded at 76 columns per RFC 2045.
func writeBase64Wrapped(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if encoded != "" {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
}

func formatFrom(from types.EmailAddress) string {
	if from.Name == "" {
		return from.Address
	}
	return fmt.Sprintf("%s <%s>", from.Name, from.Address)
}

// mapSESError translates AWS SES errors into domain AppErrors.
func mapSESError(err error) error {
	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(types.ErrCodeEmailBlocked,
			"SES rejected message", err)
	}
	var tooMany *sestypes.TooManyRequestsException
	if errors.As(err, &tooMany) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"SES rate limited", err)
	}
	var paused *sestypes.SendingPausedException
	if errors.As(err, &paused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"SES sending paused", err)
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"SES request timed out", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		"SES send failed", err)
}
