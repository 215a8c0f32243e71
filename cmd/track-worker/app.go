package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/BoxTrack/config"
	"github.com/BearBump/BoxTrack/internal/bootstrap"
	"github.com/BearBump/BoxTrack/internal/broker/kafka"
	"github.com/BearBump/BoxTrack/internal/cache/rediscache"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/carriers"
	"github.com/BearBump/BoxTrack/internal/iso6346"
	"github.com/BearBump/BoxTrack/internal/services/prefetch"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newCacheStore  func(cfg *config.Config) (store trackcache.Store, closeFn func(), err error)
	newRateLimiter func(cfg *config.Config) prefetch.RateLimiter
	newProviders   func(cfg *config.Config) prefetch.Fetcher
	newConsumer    func(cfg *config.Config) kafkaConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newCacheStore: func(cfg *config.Config) (trackcache.Store, func(), error) {
			if strings.EqualFold(cfg.Stores.CacheBackend, config.CacheBackendRedis) {
				return bootstrap.NewCacheStore(cfg, nil)
			}
			st, err := bootstrap.OpenPostgresWithRetry(bootstrap.PostgresConnString(cfg), bootstrap.Tables(cfg), 60*time.Second)
			if err != nil {
				return nil, nil, err
			}
			store, closeFn, err := bootstrap.NewCacheStore(cfg, st)
			if err != nil {
				st.Close()
				return nil, nil, err
			}
			return store, func() {
				closeFn()
				st.Close()
			}, nil
		},
		newRateLimiter: func(cfg *config.Config) prefetch.RateLimiter {
			return rediscache.NewRateLimiter(bootstrap.RedisOptions(cfg))
		},
		newProviders: func(cfg *config.Config) prefetch.Fetcher {
			return bootstrap.NewProviderRouter(cfg)
		},
		newConsumer: func(cfg *config.Config) kafkaConsumer {
			group := cfg.TrackBox.KafkaConsumerGroup
			if group == "" {
				group = "track-worker"
			}
			return kafka.NewConsumer(bootstrap.KafkaBrokers(cfg), bootstrap.Topic(cfg), group)
		},
	}
}

func newWarmer(cfg *config.Config, reg *carriers.Registry, providers prefetch.Fetcher, cache *trackcache.Cache, rl prefetch.RateLimiter) *prefetch.Warmer {
	concurrency := cfg.TrackBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	rlPerMin := int64(cfg.TrackBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 60
	}
	return prefetch.New(providers, cache, rl).
		WithSettings(concurrency, bootstrap.ProviderTimeout(cfg), rlPerMin).
		WithCarrierRateLimits(cfg.TrackBox.WorkerCarrierRateLimits).
		WithResolver(reg, iso6346.Validator{SkipCheck: cfg.TrackBox.SkipISOCheck})
}

// RunTrackWorker consumes submission.recorded and warms the tracking cache.
// The HTTP control server is started when httpOpts.swaggerPath is set.
func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts workerHTTPOpts) error {
	reg, err := carriers.Load(cfg.Carriers.RegistryFile)
	if err != nil {
		return err
	}

	store, closeFn, err := f.newCacheStore(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	cache := trackcache.New(store, bootstrap.CacheTTL(cfg))
	warmer := newWarmer(cfg, reg, f.newProviders(cfg), cache, f.newRateLimiter(cfg))

	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	httpErr := make(chan error, 1)
	if httpOpts.swaggerPath != "" {
		httpOpts.warmer = warmer
		httpOpts.cfg = cfg
		if httpOpts.httpAddr == "" {
			httpOpts.httpAddr = cfg.TrackBox.WorkerHTTPAddr
		}
		go func() { httpErr <- runWorkerHTTPServer(ctx, httpOpts) }()
	} else {
		slog.Warn("worker http server disabled: swaggerPath is empty")
	}

	consumeErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", bootstrap.Topic(cfg), "group", cfg.TrackBox.KafkaConsumerGroup)
		consumeErr <- consumer.Consume(ctx, func(key, value []byte) error {
			return warmer.HandleMessage(ctx, key, value)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumeErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}
