// Package main is the entrypoint for the anniversary reminder worker.
//
// The worker runs once per invocation (cron drives the cadence):
//  1. Acquire the run lock; a held lock aborts the run.
//  2. Load and normalize active subscriptions and opt-outs.
//  3. Select eligible candidates for today across the configured windows.
//  4. Dispatch sequentially, committing each send to the dedup ledger.
//
// Flags:
//
//	-dry-run   compose and log without sending or writing the ledger
//	-date      evaluate as of this date (YYYY-MM-DD) instead of today
//	-verbose   force debug logging
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"luach/internal/calendar"
	"luach/internal/compose"
	"luach/internal/config"
	"luach/internal/db"
	"luach/internal/dispatch"
	"luach/internal/eligibility"
	"luach/internal/external"
	"luach/internal/ledger"
	"luach/internal/lock"
	"luach/internal/optout"
	"luach/internal/subs"
	"luach/internal/types"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "compose and log without sending")
	dateStr := flag.String("date", "", "evaluate as of this date (YYYY-MM-DD)")
	verbose := flag.Bool("verbose", false, "force debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *dryRun, *dateStr, *verbose); err != nil {
		slog.Error("reminder run failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, dryRun bool, dateStr string, verbose bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := types.ParseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(slogger)
	logger := types.NewSlogLogger(slogger).With("worker", "yahrzeit")

	today := time.Now().UTC()
	if dateStr != "" {
		today, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", dateStr, err)
		}
	}

	guard, err := lock.Acquire(cfg.Reminder.LockFile)
	if err != nil {
		return err
	}
	defer guard.Release()

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MaxConnLifetime)
	if err != nil {
		return err
	}
	defer pool.Close()

	subRepo := db.NewSubscriptionRepository(pool)
	optRepo := db.NewOptOutRepository(pool)
	ledRepo := db.NewLedgerRepository(pool)

	loaded, err := subs.NewLoader(subRepo, logger).LoadActive(ctx)
	if err != nil {
		return err
	}
	outs, err := optRepo.ListActive(ctx)
	if err != nil {
		return err
	}

	led := ledger.New(ledRepo, cfg.Reminder.RetentionDays)
	cal := calendar.NewHebcal(cfg.Digest.Israel)
	engine := eligibility.New(cal, led, logger)

	candidates, err := engine.Select(ctx, today, loaded, eligibility.NewOptOutIndex(outs), cfg.Reminder.WindowDays)
	if err != nil {
		return err
	}
	logger.Info("eligibility pass complete",
		"subscriptions", len(loaded), "candidates", len(candidates), "date", today.Format("2006-01-02"))

	var provider external.EmailProvider
	if dryRun {
		provider = &external.StubEmailProvider{Logger: slogger}
	} else {
		provider, err = external.NewEmailProvider(ctx, cfg, slogger)
		if err != nil {
			return err
		}
	}

	metrics, err := dispatch.NewMetrics(ctx, cfg.Email.MetricsEnabled, cfg.AWS.Region, logger)
	if err != nil {
		return err
	}

	tokens := optout.NewTokenCodec(cfg.Server.OptOutSecret)
	dispatcher := dispatch.New(dispatch.Config[eligibility.Candidate]{
		Engine:   "yahrzeit",
		From:     types.EmailAddress{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
		Composer: compose.NewReminderComposer(tokens, cfg.Server.PublicURL),
		Provider: provider,
		Recorder: ledger.NewRecorder(led),
		Metrics:  metrics,
		Delay:    cfg.Reminder.SendDelay,
		DryRun:   dryRun,
		Logger:   logger,
	})

	res := dispatcher.Dispatch(ctx, candidates)
	logger.Info("reminder run complete", "sent", res.Sent, "failed", res.Failed)
	return nil
}
