// Package main is the entrypoint for the opt-out HTTP API. It serves the
// one-click unsubscribe links embedded in reminder and digest emails plus a
// small JSON surface for support tooling, and shuts down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"luach/internal/api"
	"luach/internal/config"
	"luach/internal/db"
	"luach/internal/optout"
	"luach/internal/types"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("opt-out API failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: types.ParseLevel(cfg.LogLevel)}))
	slog.SetDefault(slogger)
	logger := types.NewSlogLogger(slogger).With("service", "optout-api")

	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MaxConnLifetime)
	if err != nil {
		return err
	}
	defer pool.Close()

	subRepo := db.NewSubscriptionRepository(pool)
	optRepo := db.NewOptOutRepository(pool)
	digestRepo := db.NewDigestRepository(pool)

	tokens := optout.NewTokenCodec(cfg.Server.OptOutSecret)
	service := optout.NewService(optRepo, subRepo, logger)
	server := api.NewServer(tokens, service, digestRepo, logger)

	addr := net.JoinHostPort("", cfg.Server.Port)
	return server.Run(ctx, addr, cfg.Server.ShutdownTimeout)
}
