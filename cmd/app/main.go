package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/makwana23-Harshil/binance-bot/internal/app"
	"github.com/makwana23-Harshil/binance-bot/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	defer infra.Recover()

	// Pprof server, localhost only for security.
	go func() {
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	infra.PrintBanner(bootstrap.Config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Restore persisted state before accepting any new work: hydrate
	// open orders, reconcile them against the exchange, rebuild
	// strategies. Never resubmits an order.
	if err := bootstrap.Resume(ctx); err != nil {
		slog.Error("❌ Resume failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.InfoContext(ctx, "✨ Order engine fully operational. Press Ctrl+C to exit.")

	if err := bootstrap.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("❌ Engine stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
