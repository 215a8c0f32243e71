package bootstrap

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/BearBump/BoxTrack/config"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/cma"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/fake"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/maersk"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/msc"
	"github.com/BearBump/BoxTrack/internal/models"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRouter(t *testing.T) {
	r := NewProviderRouter(&config.Config{
		Carriers: config.CarriersConfig{CMA: config.ProviderConfig{Disabled: true}},
	})

	_, ok := r.For("MSCU").(*msc.Client)
	require.True(t, ok)
	_, ok = r.For("MAEU").(*maersk.Client)
	require.True(t, ok)
	_, ok = r.For("CMAU").(*cma.Client)
	require.False(t, ok)
	_, ok = r.For("CMAU").(*fake.FakeClient)
	require.True(t, ok)
	_, ok = r.For("").(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaults(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, 6*time.Hour, CacheTTL(cfg))
	require.Equal(t, 15*time.Second, ProviderTimeout(cfg))
	require.Equal(t, 2*time.Second, PublishTimeout(cfg))
	require.Equal(t, "submission.recorded", Topic(cfg))

	cfg.TrackBox.CacheTTLSeconds = 60
	cfg.Kafka.SubmissionRecordedTopicName = "leads"
	cfg.TrackBox.PublishTimeoutMillis = 250
	require.Equal(t, time.Minute, CacheTTL(cfg))
	require.Equal(t, 250*time.Millisecond, PublishTimeout(cfg))
	require.Equal(t, "leads", Topic(cfg))
}

func TestPostgresConnString(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Host: "db", Port: 5432, Username: "u", Password: "p", DBName: "boxtrack",
	}}
	require.Equal(t, "postgres://u:p@db:5432/boxtrack?sslmode=disable", PostgresConnString(cfg))
}

func TestNewCacheStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{}
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mustPort(t, mr.Port())
	cfg.Stores.CacheBackend = config.CacheBackendRedis

	store, closeFn, err := NewCacheStore(cfg, nil)
	require.NoError(t, err)
	defer closeFn()

	c := trackcache.New(store, CacheTTL(cfg))
	now := time.Now()
	_, err = c.Refresh(context.Background(), "MSCU1234566", &models.TrackingPayload{Status: "BOOKED"}, now)
	require.NoError(t, err)

	// ключ живёт дольше, чем TTL свежести
	require.Greater(t, mr.TTL("boxtrack:track:MSCU1234566"), CacheTTL(cfg))
}

func TestNewCacheStore_Errors(t *testing.T) {
	_, _, err := NewCacheStore(&config.Config{}, nil)
	require.Error(t, err)

	_, _, err = NewCacheStore(&config.Config{Stores: config.StoresConfig{CacheBackend: "dynamo"}}, nil)
	require.Error(t, err)
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
