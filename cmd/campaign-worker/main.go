package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CampaignBox/config"
	"github.com/pkg/errors"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		slog.Error("config parse error", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunCampaignWorker(ctx, cfg, defaultWorkerFactories(), os.Getenv("workerSwaggerPath")); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("campaign-worker stopped", "error", err.Error())
		cancel()
		os.Exit(1)
	}
}
