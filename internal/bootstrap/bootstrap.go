// Package bootstrap turns a loaded config into wired components shared by
// track-api and track-worker. Zero values in config fall back to defaults here.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/BoxTrack/config"
	"github.com/BearBump/BoxTrack/internal/broker/messages"
	"github.com/BearBump/BoxTrack/internal/cache/rediscache"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/cma"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/fake"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/maersk"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/msc"
	"github.com/BearBump/BoxTrack/internal/storage/pgtracking"
)

func PostgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func Tables(cfg *config.Config) pgtracking.Tables {
	return pgtracking.Tables{
		Submissions: cfg.Stores.SubmissionTable,
		Cache:       cfg.Stores.CacheTable,
		Users:       cfg.Stores.UsersTable,
	}
}

// OpenPostgresWithRetry waits for the database: in docker compose it may
// come up after the service.
func OpenPostgresWithRetry(connString string, tables pgtracking.Tables, wait time.Duration) (*pgtracking.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgtracking.New(connString, tables)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("postgres is not ready after %s: %w", wait, lastErr)
		}
		time.Sleep(1 * time.Second)
	}
}

func RedisAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
}

func RedisOptions(cfg *config.Config) rediscache.Options {
	return rediscache.Options{
		Addr:      RedisAddr(cfg),
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	}
}

func KafkaBrokers(cfg *config.Config) []string {
	return []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
}

func Topic(cfg *config.Config) string {
	if cfg.Kafka.SubmissionRecordedTopicName != "" {
		return cfg.Kafka.SubmissionRecordedTopicName
	}
	return messages.SubmissionRecordedTopic
}

func CacheTTL(cfg *config.Config) time.Duration {
	if cfg.TrackBox.CacheTTLSeconds > 0 {
		return time.Duration(cfg.TrackBox.CacheTTLSeconds) * time.Second
	}
	return trackcache.DefaultTTL
}

func ProviderTimeout(cfg *config.Config) time.Duration {
	if cfg.TrackBox.ProviderTimeoutSeconds > 0 {
		return time.Duration(cfg.TrackBox.ProviderTimeoutSeconds) * time.Second
	}
	return 15 * time.Second
}

// PublishTimeout bounds the submission.recorded write on the init path.
func PublishTimeout(cfg *config.Config) time.Duration {
	if cfg.TrackBox.PublishTimeoutMillis > 0 {
		return time.Duration(cfg.TrackBox.PublishTimeoutMillis) * time.Millisecond
	}
	return 2 * time.Second
}

// NewProviderRouter registers one adapter per integrated carrier; everything
// else goes to the mock.
func NewProviderRouter(cfg *config.Config) *carrier.Router {
	r := carrier.NewRouter(fake.New())
	c := cfg.Carriers
	if !c.MSC.Disabled {
		r.Register("MSCU", msc.New(c.MSC.BaseURL, c.MSC.APIKey))
	}
	if !c.Maersk.Disabled {
		r.Register("MAEU", maersk.New(c.Maersk.BaseURL, c.Maersk.APIKey))
	}
	if !c.CMA.Disabled {
		r.Register("CMAU", cma.New(c.CMA.BaseURL, c.CMA.APIKey))
	}
	return r
}

// NewCacheStore picks the tracking cache backend. pg is used for the
// postgres backend and may be nil otherwise.
func NewCacheStore(cfg *config.Config, pg *pgtracking.Storage) (trackcache.Store, func(), error) {
	switch strings.ToLower(cfg.Stores.CacheBackend) {
	case config.CacheBackendRedis:
		rc := rediscache.New(RedisOptions(cfg))
		retention := time.Duration(cfg.Stores.CacheRetentionSeconds) * time.Second
		if ttl := CacheTTL(cfg); retention < ttl {
			// устаревшая запись должна пережить TTL, иначе serve-stale нечего отдавать
			retention = 4 * ttl
		}
		slog.Info("tracking cache backend", "backend", "redis", "retention", retention.String())
		return trackcache.NewBytesStore(rc, retention), func() { _ = rc.Close() }, nil
	case "", config.CacheBackendPostgres:
		if pg == nil {
			return nil, nil, fmt.Errorf("postgres cache backend requires a database")
		}
		slog.Info("tracking cache backend", "backend", "postgres")
		return pg, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Stores.CacheBackend)
	}
}
