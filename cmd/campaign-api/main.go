package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	app := mustBootstrapCampaignAPI()
	err := app.Run()
	app.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("campaign-api stopped", "error", err.Error())
		os.Exit(1)
	}
}
