package main

import (
	"context"
	"time"

	"github.com/BearBump/CampaignBox/config"
	"github.com/BearBump/CampaignBox/internal/audience"
	"github.com/BearBump/CampaignBox/internal/broker/kafka"
	"github.com/BearBump/CampaignBox/internal/cache/rediscache"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer/provider"
	"github.com/BearBump/CampaignBox/internal/services/dispatch"
	"github.com/BearBump/CampaignBox/internal/services/scheduler"
	"github.com/BearBump/CampaignBox/internal/storage/pgcampaign"
	"github.com/BearBump/CampaignBox/internal/tokens"
	"github.com/pkg/errors"
)

// workerStore is everything the worker needs from storage.
type workerStore interface {
	dispatch.Repository
	scheduler.Repository
	audience.ListStore
	tokens.Store
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (store workerStore, closeFn func(), err error)
	newProducer    func(cfg *config.Config) dispatch.Producer
	newRateLimiter func(cfg *config.Config) dispatch.RateLimiter
	newMailer      func(cfg *config.Config) mailer.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgcampaign.New(cfg.PostgresConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) dispatch.Producer {
			return kafka.NewProducer(cfg.KafkaBrokers())
		},
		newRateLimiter: func(cfg *config.Config) dispatch.RateLimiter {
			return rediscache.NewRateLimiter(cfg.RedisAddr())
		},
		newMailer: func(cfg *config.Config) mailer.Client {
			return provider.New(cfg.CampaignBox.MailProviderBaseURL, cfg.CampaignBox.MailProviderAPIKey)
		},
	}
}

// RunCampaignWorker dispatches scheduled campaigns until ctx is done. The
// ops HTTP server runs alongside when swaggerPath is set.
func RunCampaignWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	cb := cfg.CampaignBox
	if cb.PublicBaseURL == "" {
		return errors.New("campaignbox.public_base_url is required")
	}

	pollInterval := time.Duration(cb.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	batchSize := cb.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	engine := dispatch.New(store, audience.New(store), tokens.New(store), f.newMailer(cfg), cb.PublicBaseURL).
		WithSettings(cb.SendConcurrency, time.Duration(cb.SendTimeoutSeconds)*time.Second, int64(cb.RateLimitPerMinute))
	if rl := f.newRateLimiter(cfg); rl != nil {
		engine.WithRateLimiter(rl)
	}
	if p := f.newProducer(cfg); p != nil {
		engine.WithNotifier(p, cfg.ActivityTopic())
	}

	s := scheduler.New(store, engine).WithSettings(pollInterval, batchSize, 0)

	if swaggerPath != "" {
		go func() {
			_ = runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cb.WorkerHTTPAddr,
				swaggerPath: swaggerPath,
				scheduler:   s,
				engine:      engine,
				cfg:         cfg,
			})
		}()
	}

	return s.Run(ctx)
}
