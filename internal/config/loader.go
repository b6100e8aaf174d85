// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC process timezone to prevent date-math drift.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Process envconfig struct tags to populate Config.
//  4. Validate the struct with go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"luach/internal/types"
)

// Load resolves and validates the configuration from the environment.
// Errors carry ErrCodeConfigInvalid; callers treat them as fatal.
func Load() (*Config, error) {
	// The workers compute civil-date differences; a non-UTC process zone
	// would shift "today" around DST transitions.
	time.Local = time.UTC

	// A missing .env file is the normal production case.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "failed to process environment", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct-level constraints plus the cross-field rules that
// validator tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return types.NewAppError(types.ErrCodeConfigInvalid, "configuration validation failed", err)
	}

	if len(cfg.Reminder.WindowDays) == 0 {
		return types.NewAppError(types.ErrCodeConfigInvalid, "at least one reminder window is required", nil)
	}
	seen := make(map[int]bool, len(cfg.Reminder.WindowDays))
	for _, w := range cfg.Reminder.WindowDays {
		if w <= 0 {
			return types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("reminder window must be positive, got %d", w), nil)
		}
		if seen[w] {
			return types.NewAppError(types.ErrCodeConfigInvalid,
				fmt.Sprintf("duplicate reminder window %d", w), nil)
		}
		seen[w] = true
	}

	if cfg.Email.Provider == "sendgrid" && cfg.Email.SendGridAPIKey == "" {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			"SENDGRID_API_KEY is required when EMAIL_PROVIDER=sendgrid", nil)
	}

	return nil
}
