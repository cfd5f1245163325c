package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	campaignsapi "github.com/BearBump/CampaignBox/internal/api/campaigns_api"
	trackingapi "github.com/BearBump/CampaignBox/internal/api/tracking_api"
	"github.com/BearBump/CampaignBox/internal/broker/kafka"
	"github.com/BearBump/CampaignBox/internal/broker/messages"
	"github.com/BearBump/CampaignBox/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type campaignAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string
	operatorToken string
	fallbackURL   string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	ConsumeActivity(ctx context.Context, handle kafka.ActivityHandler) error
}

type analyticsService interface {
	Get(ctx context.Context, campaignID uint64) (*models.Analytics, error)
	Invalidate(ctx context.Context, campaignID uint64) error
}

type apiServices struct {
	campaigns campaignsapi.CampaignService
	engine    campaignsapi.Dispatcher
	analytics analyticsService
	tracking  trackingapi.Recorder
}

func runCampaignAPI(ctx context.Context, opts campaignAPIOpts, svcs apiServices, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(opts, svcs))
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			err := consumer.ConsumeActivity(ctx, activityHandler(svcs.analytics))
			if err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "error", err.Error())
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// activityHandler drops the cached analytics of the campaign a message is
// about. Activity recorded in this process is already invalidated in place;
// this covers what other processes, such as the worker, report.
func activityHandler(a analyticsService) kafka.ActivityHandler {
	return func(ctx context.Context, m messages.CampaignActivity) error {
		return a.Invalidate(ctx, m.CampaignID)
	}
}

func newRouter(opts campaignAPIOpts, svcs apiServices) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Mount("/campaigns", campaignsapi.New(svcs.campaigns, svcs.engine, svcs.analytics, opts.operatorToken).Routes())
	r.Mount("/track", trackingapi.New(svcs.tracking, opts.fallbackURL).Routes())
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
