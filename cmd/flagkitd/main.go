// Command flagkitd runs the propagation service: the queue worker, the
// periodic proxy health checks and the SDK-facing HTTP endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flagkit "github.com/flagkit/flagkit"
	"github.com/flagkit/flagkit/pkg/cdn"
	"github.com/flagkit/flagkit/pkg/config"
	"github.com/flagkit/flagkit/pkg/httpserver"
	"github.com/flagkit/flagkit/pkg/logger"
	"github.com/flagkit/flagkit/pkg/mongo"
	"github.com/flagkit/flagkit/pkg/payloadcache"
	"github.com/flagkit/flagkit/pkg/redis"
	"github.com/flagkit/flagkit/pkg/store"
	"github.com/flagkit/flagkit/pkg/telemetry"
)

type appConfig struct {
	Env          string `env:"APP_ENV" envDefault:"development"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"flagkit"`
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseName string `env:"MONGODB_DATABASE" envDefault:"flagkit"`

	// Redis is optional; without it the payload cache lives in Mongo only.
	RedisCache        bool  `env:"REDIS_CACHE_ENABLED" envDefault:"false"`
	FrontCacheEntries int64 `env:"PAYLOAD_CACHE_ENTRIES" envDefault:"10000"`

	CDNPurgeEndpoint string `env:"CDN_PURGE_ENDPOINT"`
	CDNAPIKey        string `env:"CDN_API_KEY"`

	ProxyHealthcheckEvery time.Duration `env:"PROXY_HEALTHCHECK_INTERVAL" envDefault:"1m"`

	Mongo mongo.Config
	Redis redis.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("flagkitd exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.WithEnvironment(cfg.Env, cfg.ServiceName))
	logger.SetAsDefault(log)

	db, err := mongo.NewWithDatabase(ctx, cfg.Mongo, cfg.DatabaseName)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() { _ = db.Client().Disconnect(context.Background()) }()

	tasks := store.NewTaskStore(db)
	if err := tasks.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure queue indexes: %w", err)
	}

	var backing payloadcache.Cache = payloadcache.NewMongoStore(db)
	checks := []func(context.Context) error{mongo.Healthcheck(db.Client())}
	if cfg.RedisCache {
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		backing = payloadcache.NewRedisCache(rdb)
		checks = append(checks, redis.Healthcheck(rdb))
	}
	cache, err := payloadcache.NewReadThrough(backing, cfg.FrontCacheEntries)
	if err != nil {
		return fmt.Errorf("build payload cache: %w", err)
	}
	defer cache.Close()

	opts := []flagkit.Option{
		flagkit.WithLogger(log),
		flagkit.WithHealthcheckInterval(cfg.ProxyHealthcheckEvery),
		flagkit.WithHealthChecks(checks...),
	}
	if cfg.CDNPurgeEndpoint != "" {
		purger, err := cdn.NewPurger(cfg.CDNPurgeEndpoint,
			cdn.WithAPIKey(cfg.CDNAPIKey),
			cdn.WithLogger(log))
		if err != nil {
			return fmt.Errorf("build cdn purger: %w", err)
		}
		opts = append(opts, flagkit.WithPurger(purger))
	}
	if tel, err := telemetry.NewPipeline(); err == nil {
		opts = append(opts, flagkit.WithTelemetry(tel))
	}

	pipeline, err := flagkit.New(flagkit.Dependencies{
		Source:      store.NewFeatureSource(db),
		Cache:       cache,
		Connections: store.NewConnectionStore(db),
		Webhooks:    store.NewWebhookStore(db),
		Tasks:       tasks,
	}, opts...)
	if err != nil {
		return fmt.Errorf("assemble pipeline: %w", err)
	}

	go func() {
		if err := pipeline.Run(ctx); err != nil {
			log.Error("background pipeline stopped", logger.Error(err))
		}
	}()

	srv := httpserver.New(
		httpserver.WithAddr(cfg.HTTPAddr),
		httpserver.WithLogger(log),
	)
	return srv.Run(ctx, pipeline.Router())
}
