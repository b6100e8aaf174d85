package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"luach/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL, overridable in tests.
const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey  string
	BaseURL string // override for testing; defaults to sendGridAPIBase
	Logger  *slog.Logger
}

// SendGridClient implements EmailProvider against the SendGrid v3 Mail Send
// API through BaseClient, inheriting the circuit breaker and retry stack.
// It is the fallback transport when SES is unavailable in a region.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridClient creates a SendGridClient with the standard retry policy.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	base := NewBaseClient(httpClient, "sendgrid", DefaultRetryPolicy(), "luach/1.0")
	return NewSendGridClientWithBase(base, cfg)
}

// NewSendGridClientWithBase creates a SendGridClient with a caller-provided
// BaseClient, used by tests to disable retries.
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// sendGridRequest is the subset of the v3 Mail Send payload the mailer uses.
type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Headers          map[string]string         `json:"headers,omitempty"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content     string `json:"content"` // base64
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

// Send posts the message to /v3/mail/send. SendGrid returns 202 with the
// message ID in the X-Message-Id header.
func (c *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := sendGridRequest{
		Personalizations: []sendGridPersonalization{{
			To: []sendGridAddress{{Email: input.To}},
		}},
		From:    sendGridAddress{Email: input.From.Address, Name: input.From.Name},
		Subject: input.Subject,
		Headers: input.Headers,
	}
	// SendGrid requires text/plain before text/html.
	if input.BodyText != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/plain", Value: input.BodyText})
	}
	if input.BodyHTML != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: input.BodyHTML})
	}
	if len(input.ICS) > 0 {
		payload.Attachments = append(payload.Attachments, sendGridAttachment{
			Content:     base64.StdEncoding.EncodeToString(input.ICS),
			Type:        "text/calendar",
			Filename:    "event.ics",
			Disposition: "attachment",
		})
	}
	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal sendgrid payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build sendgrid request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusForbidden {
			// Blocked or invalid destination: terminal, not retryable.
			return "", types.NewAppError(types.ErrCodeEmailBlocked,
				fmt.Sprintf("sendgrid rejected message (%d): %s", resp.StatusCode, respBody), nil)
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("sendgrid returned %d: %s", resp.StatusCode, respBody), nil)
	}

	c.logger.Debug("sendgrid accepted message",
		"elapsed", time.Since(start).String(),
		"message_id", resp.Header.Get("X-Message-Id"))
	return resp.Header.Get("X-Message-Id"), nil
}
