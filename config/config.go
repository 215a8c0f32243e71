package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	TrackBox TrackBoxConfig `yaml:"trackbox"`
	Carriers CarriersConfig `yaml:"carriers"`
	Stores   StoresConfig   `yaml:"stores"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	SubmissionRecordedTopicName string `yaml:"submission_recorded_topic_name"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type TrackBoxConfig struct {
	GRPCAddr           string   `yaml:"grpc_addr"`
	HTTPAddr           string   `yaml:"http_addr"`
	KafkaConsumerGroup string   `yaml:"kafka_consumer_group"`
	AllowedOrigins     []string `yaml:"allowed_origins"`

	CacheTTLSeconds        int  `yaml:"cache_ttl_seconds"`
	ProviderTimeoutSeconds int  `yaml:"provider_timeout_seconds"`
	PublishTimeoutMillis   int  `yaml:"publish_timeout_ms"`
	SkipISOCheck           bool `yaml:"skip_iso_check"`
	Debug                  bool `yaml:"debug"`

	ServeStaleOnProviderError bool `yaml:"serve_stale_on_provider_error"`
	UserUpsertBestEffort      bool `yaml:"user_upsert_best_effort"`

	WorkerHTTPAddr           string         `yaml:"worker_http_addr"`
	WorkerConcurrency        int            `yaml:"worker_concurrency"`
	WorkerRateLimitPerMinute int            `yaml:"worker_rate_limit_per_minute"`
	WorkerCarrierRateLimits  map[string]int `yaml:"worker_carrier_rate_limits"`
}

type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Disabled routes the carrier to the mock adapter.
	Disabled bool `yaml:"disabled"`
}

type CarriersConfig struct {
	// RegistryFile overrides the embedded carrier table.
	RegistryFile string         `yaml:"registry_file"`
	MSC          ProviderConfig `yaml:"msc"`
	Maersk       ProviderConfig `yaml:"maersk"`
	CMA          ProviderConfig `yaml:"cma"`
}

const (
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
)

type StoresConfig struct {
	SubmissionTable string `yaml:"submission_table"`
	CacheTable      string `yaml:"cache_table"`
	UsersTable      string `yaml:"users_table"`
	// CacheBackend is "postgres" (default) or "redis".
	CacheBackend          string `yaml:"cache_backend"`
	CacheRetentionSeconds int    `yaml:"cache_retention_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := ApplyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Переменные окружения, которые перекрывают значения из YAML.
const (
	EnvSkipISOCheck         = "SKIP_ISO_CHECK"
	EnvDebug                = "DEBUG"
	EnvCacheTTL             = "CACHE_TTL"
	EnvSubmissionTable      = "SUBMISSION_TABLE"
	EnvCacheTable           = "CACHE_TABLE"
	EnvUsersTable           = "USERS_TABLE"
	EnvCacheBackend         = "CACHE_BACKEND"
	EnvServeStale           = "SERVE_STALE"
	EnvUserUpsertBestEffort = "USER_UPSERT_BEST_EFFORT"
)

// ApplyEnv overrides cfg with environment variables that are set.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	for _, k := range []string{
		EnvSkipISOCheck, EnvDebug, EnvCacheTTL,
		EnvSubmissionTable, EnvCacheTable, EnvUsersTable,
		EnvCacheBackend, EnvServeStale, EnvUserUpsertBestEffort,
	} {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if v.IsSet(EnvSkipISOCheck) {
		cfg.TrackBox.SkipISOCheck = v.GetBool(EnvSkipISOCheck)
	}
	if v.IsSet(EnvDebug) {
		cfg.TrackBox.Debug = v.GetBool(EnvDebug)
	}
	if v.IsSet(EnvServeStale) {
		cfg.TrackBox.ServeStaleOnProviderError = v.GetBool(EnvServeStale)
	}
	if v.IsSet(EnvUserUpsertBestEffort) {
		cfg.TrackBox.UserUpsertBestEffort = v.GetBool(EnvUserUpsertBestEffort)
	}
	if v.IsSet(EnvCacheTTL) {
		ttl, err := parseTTL(v.GetString(EnvCacheTTL))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheTTL, err)
		}
		cfg.TrackBox.CacheTTLSeconds = int(ttl / time.Second)
	}
	if s := v.GetString(EnvSubmissionTable); s != "" {
		cfg.Stores.SubmissionTable = s
	}
	if s := v.GetString(EnvCacheTable); s != "" {
		cfg.Stores.CacheTable = s
	}
	if s := v.GetString(EnvUsersTable); s != "" {
		cfg.Stores.UsersTable = s
	}
	if s := v.GetString(EnvCacheBackend); s != "" {
		cfg.Stores.CacheBackend = strings.ToLower(s)
	}

	switch cfg.Stores.CacheBackend {
	case "", CacheBackendPostgres, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Stores.CacheBackend)
	}
	return nil
}

// parseTTL accepts a Go duration ("6h") or plain seconds ("21600").
func parseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < time.Second {
		return 0, fmt.Errorf("must be at least 1s")
	}
	return d, nil
}
