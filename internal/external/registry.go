package external

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"luach/internal/config"
	"luach/internal/types"
)

// NewEmailProvider instantiates the configured outbound transport. The
// "stub" provider logs instead of sending and needs no credentials; it is
// the default for local development and the implicit provider when the
// worker runs with -dry-run (the dispatcher additionally short-circuits
// before the provider in that mode).
func NewEmailProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (EmailProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Email.Provider {
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
				"failed to load AWS configuration", err)
		}
		return NewSESClient(awsCfg, SESClientConfig{
			ConfigSetName: cfg.Email.ConfigSetName,
			Logger:        logger,
		}), nil
	case "sendgrid":
		return NewSendGridClient(
			&http.Client{Timeout: 10 * time.Second},
			SendGridClientConfig{APIKey: cfg.Email.SendGridAPIKey, Logger: logger},
		), nil
	default:
		logger.Info("using stub email provider", "provider", cfg.Email.Provider)
		return &StubEmailProvider{Logger: logger}, nil
	}
}

// StubEmailProvider logs sends without transmitting anything. Every send
// succeeds with a synthetic message ID.
type StubEmailProvider struct {
	Logger *slog.Logger
	// Sent records the inputs in order, for tests.
	Sent []types.SendInput
}

// Send implements EmailProvider.
func (s *StubEmailProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	if s.Logger != nil {
		s.Logger.Info("stub email send",
			"to", input.To, "subject", input.Subject, "reference_id", input.ReferenceID)
	}
	s.Sent = append(s.Sent, input)
	return "stub-" + input.ReferenceID, nil
}
