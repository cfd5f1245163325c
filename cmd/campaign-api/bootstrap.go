package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CampaignBox/config"
	"github.com/BearBump/CampaignBox/internal/audience"
	"github.com/BearBump/CampaignBox/internal/broker/kafka"
	"github.com/BearBump/CampaignBox/internal/cache/rediscache"
	"github.com/BearBump/CampaignBox/internal/integrations/mailer/provider"
	"github.com/BearBump/CampaignBox/internal/services/analytics"
	"github.com/BearBump/CampaignBox/internal/services/campaigns"
	"github.com/BearBump/CampaignBox/internal/services/dispatch"
	"github.com/BearBump/CampaignBox/internal/services/tracking"
	"github.com/BearBump/CampaignBox/internal/storage/pgcampaign"
	"github.com/BearBump/CampaignBox/internal/tokens"
)

type campaignAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     campaignAPIOpts
	svcs     apiServices
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapCampaignAPI() *campaignAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}
	cb := cfg.CampaignBox

	httpAddr := cb.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cb.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "campaign-api"
	}
	if cb.PublicBaseURL == "" {
		panic("campaignbox.public_base_url is required")
	}
	fallbackURL := cb.FallbackRedirectURL
	if fallbackURL == "" {
		fallbackURL = cb.PublicBaseURL
	}
	// Zero turns the analytics cache off.
	analyticsTTL := time.Duration(cb.AnalyticsTTLSeconds) * time.Second
	topic := cfg.ActivityTopic()

	st := mustOpenPostgresWithRetry(cfg.PostgresConnString(), 60*time.Second)
	rc := rediscache.New(cfg.RedisAddr())
	rl := rediscache.NewRateLimiter(cfg.RedisAddr())
	producer := kafka.NewProducer(cfg.KafkaBrokers())
	consumer := kafka.NewConsumer(cfg.KafkaBrokers(), topic, consumerGroup)

	stats := analytics.New(st, rc, analyticsTTL)
	engine := dispatch.New(st, audience.New(st), tokens.New(st), provider.New(cb.MailProviderBaseURL, cb.MailProviderAPIKey), cb.PublicBaseURL).
		WithSettings(cb.SendConcurrency, time.Duration(cb.SendTimeoutSeconds)*time.Second, int64(cb.RateLimitPerMinute)).
		WithRateLimiter(rl).
		WithNotifier(producer, topic).
		WithInvalidator(stats)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &campaignAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: campaignAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
			operatorToken: cb.OperatorToken,
			fallbackURL:   fallbackURL,
		},
		svcs: apiServices{
			campaigns: campaigns.New(st, cb.PublicBaseURL),
			engine:    engine,
			analytics: stats,
			tracking:  tracking.New(st, fallbackURL).WithNotifier(producer, topic).WithInvalidator(stats),
		},
		consumer: consumer,
		closers: []func(){
			func() { _ = consumer.Close() },
			func() { _ = producer.Close() },
			func() { _ = rl.Close() },
			func() { _ = rc.Close() },
			st.Close,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgcampaign.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgcampaign.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *campaignAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *campaignAPIApp) Run() error {
	return runCampaignAPI(a.ctx, a.opts, a.svcs, a.consumer)
}
