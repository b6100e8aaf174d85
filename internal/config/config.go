// Package config defines the process configuration for the luach workers.
// Configuration is loaded once at startup and immutable thereafter; it
// follows 12-Factor principles with values resolved from the OS environment,
// optionally seeded from a .env file. Any missing required value or invalid
// format fails the process immediately.
package config

import (
	"time"
)

// Config is the top-level configuration shared by all binaries. Each
// component receives only the subset it needs.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database Database
	AWS      AWS
	Email    Email
	Reminder Reminder
	Digest   Digest
	Server   Server
}

// Database holds Postgres connection and pool tuning parameters.
type Database struct {
	URL             string        `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// AWS holds regional configuration and queue identifiers.
type AWS struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// BounceQueueURL is the SQS queue receiving SES bounce/complaint
	// notifications via SNS. Only the bounce worker reads it.
	BounceQueueURL string `envconfig:"SQS_BOUNCE_QUEUE" validate:"omitempty,url"`
	// EndpointURL overrides the AWS endpoint for LocalStack. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// Email holds delivery provider selection and identity.
type Email struct {
	// Provider selects the outbound transport: "ses", "sendgrid" or "stub".
	Provider       string `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses sendgrid stub"`
	FromAddress    string `envconfig:"EMAIL_FROM_ADDRESS" default:"reminders@luach.email" validate:"email"`
	FromName       string `envconfig:"EMAIL_FROM_NAME" default:"Luach Reminders"`
	ConfigSetName  string `envconfig:"SES_CONFIG_SET"`
	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY"`
	// MetricsEnabled controls CloudWatch run tallies.
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"false"`
}

// Reminder configures the anniversary reminder worker.
type Reminder struct {
	// WindowDays are the configured lookahead windows. The engine evaluates
	// them shortest first so a candidate is selected at most once per run.
	WindowDays []int `envconfig:"REMINDER_WINDOWS" default:"7,1"`
	// RetentionDays bounds how far back the send ledger is consulted.
	// Older rows are ignored, not deleted.
	RetentionDays int `envconfig:"LEDGER_RETENTION_DAYS" default:"400"`
	// SendDelay is the optional inter-message pause. Zero disables it.
	SendDelay time.Duration `envconfig:"SEND_DELAY" default:"0s"`
	LockFile  string        `envconfig:"REMINDER_LOCK_FILE" default:"/tmp/luach-reminder.lock"`
}

// Digest configures the weekly location digest worker.
type Digest struct {
	// LedgerDir holds the flat-file per-run send logs, one file per run
	// date, plus gzip-rotated files from prior weeks.
	LedgerDir string        `envconfig:"DIGEST_LEDGER_DIR" default:"/var/lib/luach/digest"`
	SendDelay time.Duration `envconfig:"DIGEST_SEND_DELAY" default:"0s"`
	LockFile  string        `envconfig:"DIGEST_LOCK_FILE" default:"/tmp/luach-digest.lock"`
	// Israel switches holiday schemes for the send-day predicate.
	Israel bool `envconfig:"DIGEST_ISRAEL" default:"false"`
}

// Server configures the opt-out HTTP API.
type Server struct {
	Port string `envconfig:"PORT" default:"8080"`
	// PublicURL is the externally visible base URL embedded in unsubscribe
	// links (no trailing slash).
	PublicURL string `envconfig:"PUBLIC_URL" default:"http://localhost:8080" validate:"url"`
	// OptOutSecret keys the HMAC over unsubscribe tokens.
	OptOutSecret    string        `envconfig:"OPTOUT_TOKEN_SECRET" validate:"required"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}
