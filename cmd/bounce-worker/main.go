// Package main is the entrypoint for the bounce worker. It long-polls the
// SQS queue subscribed to the SES feedback SNS topic and suppresses hard
// bounces and complaints in both subscriber stores. The loop runs until
// SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"luach/internal/bounce"
	"luach/internal/config"
	"luach/internal/db"
	"luach/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("bounce worker failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.AWS.BounceQueueURL == "" {
		return fmt.Errorf("SQS_BOUNCE_QUEUE is required for the bounce worker")
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: types.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(slogger)
	logger := types.NewSlogLogger(slogger).With("worker", "bounce")

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MaxConnLifetime)
	if err != nil {
		return err
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to load AWS configuration", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	worker := bounce.NewWorker(client, cfg.AWS.BounceQueueURL, []bounce.Suppressor{
		db.NewSubscriptionRepository(pool),
		db.NewDigestRepository(pool),
	}, logger)

	return worker.Run(ctx)
}
