package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BearBump/BoxTrack/config"
	"github.com/BearBump/BoxTrack/internal/bootstrap"
	"github.com/BearBump/BoxTrack/internal/broker/kafka"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/carriers"
	"github.com/BearBump/BoxTrack/internal/iso6346"
	"github.com/BearBump/BoxTrack/internal/reqlog"
	"github.com/BearBump/BoxTrack/internal/services/trackings"
)

type trackAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     trackAPIOpts
	svc      *trackings.Service
	producer *kafka.Producer
	closers  []func()

	closeOnce sync.Once
}

func mustBootstrapTrackAPI() *trackAPIApp {
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
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	reqlog.Setup(cfg.TrackBox.Debug)

	grpcAddr := cfg.TrackBox.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := cfg.TrackBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	reg, err := carriers.Load(cfg.Carriers.RegistryFile)
	if err != nil {
		panic(fmt.Sprintf("carrier registry: %v", err))
	}

	st, err := bootstrap.OpenPostgresWithRetry(bootstrap.PostgresConnString(cfg), bootstrap.Tables(cfg), 60*time.Second)
	if err != nil {
		panic(err)
	}

	store, closeCache, err := bootstrap.NewCacheStore(cfg, st)
	if err != nil {
		st.Close()
		panic(err)
	}

	producer := kafka.NewProducer(bootstrap.KafkaBrokers(cfg))

	svc := trackings.New(trackings.Deps{
		Registry:    reg,
		Validator:   iso6346.Validator{SkipCheck: cfg.TrackBox.SkipISOCheck},
		Providers:   bootstrap.NewProviderRouter(cfg),
		Cache:       trackcache.New(store, bootstrap.CacheTTL(cfg)),
		Submissions: st,
		Users:       st,
		Publisher:   producer,
	}, trackings.Options{
		ProviderTimeout:      bootstrap.ProviderTimeout(cfg),
		ServeStale:           cfg.TrackBox.ServeStaleOnProviderError,
		UserUpsertBestEffort: cfg.TrackBox.UserUpsertBestEffort,
		Topic:                bootstrap.Topic(cfg),
		PublishTimeout:       bootstrap.PublishTimeout(cfg),
	})

	slog.Info("track-api configured",
		"carriers", len(reg.List()),
		"cache_ttl", bootstrap.CacheTTL(cfg).String(),
		"cache_backend", cfg.Stores.CacheBackend,
		"skip_iso_check", cfg.TrackBox.SkipISOCheck,
		"serve_stale", cfg.TrackBox.ServeStaleOnProviderError,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &trackAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: trackAPIOpts{
			grpcAddr:       grpcAddr,
			httpAddr:       httpAddr,
			grpcDialAddr:   grpcAddr,
			swaggerPath:    swaggerPath,
			allowedOrigins: cfg.TrackBox.AllowedOrigins,
			readyCheck:     st.Ping,
		},
		svc:      svc,
		producer: producer,
		closers:  []func(){closeCache, st.Close},
	}
}

func (a *trackAPIApp) Close() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.producer != nil {
			_ = a.producer.Close()
		}
		for _, c := range a.closers {
			c()
		}
	})
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.svc)
}
