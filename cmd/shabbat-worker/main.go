// Package main is the entrypoint for the weekly digest worker.
//
// The worker runs daily under cron and exits immediately unless today is
// the week's planned send day (Thursday, shifted earlier around major
// holidays). On the send day it:
//  1. Acquires the run lock.
//  2. Replays the week's flat-file ledger to skip already-sent recipients.
//  3. Sends the digest east-to-west, appending each success to the ledger.
//
// Flags:
//
//	-force     send regardless of the planned send day
//	-dry-run   compose and log without sending or writing the ledger
//	-date      evaluate as of this date (YYYY-MM-DD) instead of today
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
	"luach/internal/config"
	"luach/internal/db"
	"luach/internal/digest"
	"luach/internal/dispatch"
	"luach/internal/external"
	"luach/internal/lock"
	"luach/internal/optout"
	"luach/internal/types"
)

func main() {
	force := flag.Bool("force", false, "send regardless of the planned send day")
	dryRun := flag.Bool("dry-run", false, "compose and log without sending")
	dateStr := flag.String("date", "", "evaluate as of this date (YYYY-MM-DD)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *force, *dryRun, *dateStr); err != nil {
		slog.Error("digest run failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, force, dryRun bool, dateStr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: types.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(slogger)
	logger := types.NewSlogLogger(slogger).With("worker", "shabbat")

	today := time.Now().UTC()
	if dateStr != "" {
		today, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", dateStr, err)
		}
	}

	cal := calendar.NewHebcal(cfg.Digest.Israel)
	plan, sendToday, err := digest.ShouldSendToday(ctx, cal, today)
	if err != nil {
		return err
	}
	if !sendToday && !force {
		if plan.Skip {
			logger.Info("no workable send day this week, skipping",
				"week_of", plan.WeekOf.Format("2006-01-02"))
		} else {
			logger.Info("not the send day, exiting",
				"planned", plan.SendDate.Format("2006-01-02"),
				"week_of", plan.WeekOf.Format("2006-01-02"))
		}
		return nil
	}

	guard, err := lock.Acquire(cfg.Digest.LockFile)
	if err != nil {
		return err
	}
	defer guard.Release()

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MaxConnLifetime)
	if err != nil {
		return err
	}
	defer pool.Close()

	subscribers, err := db.NewDigestRepository(pool).ListActive(ctx)
	if err != nil {
		return err
	}
	digest.SortEastToWest(subscribers)

	fileLedger, err := digest.NewFileLedger(cfg.Digest.LedgerDir, logger)
	if err != nil {
		return err
	}
	sent, err := fileLedger.SentSet(digest.Item{WeekOf: plan.WeekOf})
	if err != nil {
		return err
	}

	items := make([]digest.Item, 0, len(subscribers))
	for _, sub := range subscribers {
		if sent[sub.EmailAddress] {
			continue
		}
		items = append(items, digest.Item{Subscriber: sub, WeekOf: plan.WeekOf})
	}
	logger.Info("digest plan ready",
		"week_of", plan.WeekOf.Format("2006-01-02"),
		"subscribers", len(subscribers),
		"already_sent", len(subscribers)-len(items))

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
	dispatcher := dispatch.New(dispatch.Config[digest.Item]{
		Engine:   "shabbat",
		From:     types.EmailAddress{Name: cfg.Email.FromName, Address: cfg.Email.FromAddress},
		Composer: digest.NewComposer(digest.HebcalTimes{IL: cfg.Digest.Israel}, tokens, cfg.Server.PublicURL),
		Provider: provider,
		Recorder: fileLedger,
		Metrics:  metrics,
		Delay:    cfg.Digest.SendDelay,
		DryRun:   dryRun,
		Logger:   logger,
	})

	res := dispatcher.Dispatch(ctx, items)
	logger.Info("digest run complete", "sent", res.Sent, "failed", res.Failed)
	return nil
}
