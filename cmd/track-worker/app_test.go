package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/BoxTrack/config"
	"github.com/BearBump/BoxTrack/internal/broker/kafka"
	"github.com/BearBump/BoxTrack/internal/broker/messages"
	"github.com/BearBump/BoxTrack/internal/cache/rediscache"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/fake"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/msc"
	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/BearBump/BoxTrack/internal/services/prefetch"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*models.CacheEntry{}}
}

func (m *memStore) GetCacheEntry(ctx context.Context, container string) (*models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[container]
	return e, ok, nil
}

func (m *memStore) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Container] = e
	return nil
}

func (m *memStore) has(container string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[container]
	return ok
}

// fakeConsumer отдаёт сообщения по порядку и ждёт отмены контекста.
type fakeConsumer struct {
	msgs   [][]byte
	closed bool
}

func (c *fakeConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, m := range c.msgs {
		if err := handler(nil, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

func testFactories(t *testing.T, store *memStore, cons *fakeConsumer) workerFactories {
	mr := miniredis.RunT(t)
	return workerFactories{
		newCacheStore: func(cfg *config.Config) (trackcache.Store, func(), error) {
			return store, func() {}, nil
		},
		newRateLimiter: func(cfg *config.Config) prefetch.RateLimiter {
			return rediscache.NewRateLimiter(rediscache.Options{Addr: mr.Addr()})
		},
		newProviders: func(cfg *config.Config) prefetch.Fetcher {
			return carrier.NewRouter(fake.New())
		},
		newConsumer: func(cfg *config.Config) kafkaConsumer {
			return cons
		},
	}
}

func TestDefaultWorkerFactories_Providers(t *testing.T) {
	f := defaultWorkerFactories()

	r, ok := f.newProviders(&config.Config{}).(*carrier.Router)
	require.True(t, ok)
	_, ok = r.For("MSCU").(*msc.Client)
	require.True(t, ok)

	r, ok = f.newProviders(&config.Config{
		Carriers: config.CarriersConfig{MSC: config.ProviderConfig{Disabled: true}},
	}).(*carrier.Router)
	require.True(t, ok)
	_, ok = r.For("MSCU").(*fake.FakeClient)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ConsumerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	cons := f.newConsumer(cfg)
	require.NotNil(t, cons)
	_, ok := cons.(*kafka.Consumer)
	require.True(t, ok)
	require.NoError(t, cons.Close())
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestDefaultWorkerFactories_RedisCacheStore(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg := &config.Config{
		Redis:  config.RedisConfig{Host: mr.Host(), Port: port},
		Stores: config.StoresConfig{CacheBackend: config.CacheBackendRedis},
	}

	store, closeFn, err := defaultWorkerFactories().newCacheStore(cfg)
	require.NoError(t, err)
	defer closeFn()
	_, ok := store.(*trackcache.BytesStore)
	require.True(t, ok)
}

func TestRunTrackWorker_WarmsCacheFromMessages(t *testing.T) {
	store := newMemStore()
	good, err := json.Marshal(messages.SubmissionRecorded{ID: "ZZZZ1234568", Container: "ZZZZ1234568", RecordedAt: time.Now()})
	require.NoError(t, err)
	cons := &fakeConsumer{msgs: [][]byte{[]byte("not-json"), good}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- RunTrackWorker(ctx, &config.Config{}, testFactories(t, store, cons), workerHTTPOpts{})
	}()

	require.Eventually(t, func() bool { return store.has("ZZZZ1234568") }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, cons.closed)
}

func TestRunTrackWorker_ContextCanceled(t *testing.T) {
	calledClose := false
	f := testFactories(t, newMemStore(), &fakeConsumer{})
	f.newCacheStore = func(cfg *config.Config) (trackcache.Store, func(), error) {
		return newMemStore(), func() { calledClose = true }, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrackWorker(ctx, &config.Config{}, f, workerHTTPOpts{})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestWorkerHTTP_Endpoints(t *testing.T) {
	sw := filepath.Join(t.TempDir(), "worker.swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	store := newMemStore()
	cfg := &config.Config{}
	cfg.TrackBox.WorkerConcurrency = 2
	cfg.Carriers.MSC.APIKey = "secret"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunTrackWorker(ctx, cfg, testFactories(t, store, &fakeConsumer{}), workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(addr string) { addrCh <- addr },
		})
	}()
	base := "http://" + <-addrCh

	for _, path := range []string{"/healthz", "/readyz", "/swagger.json", "/stats"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Get(base + "/config")
	require.NoError(t, err)
	var conf map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conf))
	resp.Body.Close()
	require.EqualValues(t, 2, conf["concurrency"])
	require.NotContains(t, conf, "apiKey")

	resp, err = http.Post(base+"/trigger", "application/json", bytes.NewBufferString(`{"items":[]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(base+"/trigger", "application/json",
		bytes.NewBufferString(`{"items":[{"container":" zzzz1234568 "},{"carrierCode":"ZZZZ","container":"ZZZZ1234568"},{"container":"MSCU1234567"}]}`))
	require.NoError(t, err)
	var tr triggerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, tr.Outcomes[prefetch.OutcomeFetched]+tr.Outcomes[prefetch.OutcomeAlreadyWarm])
	require.Equal(t, 1, tr.Outcomes[prefetch.OutcomeInvalid])
	require.False(t, store.has("MSCU1234567"))
	require.True(t, store.has("ZZZZ1234568"))

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var st prefetch.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	require.GreaterOrEqual(t, st.TotalFetched, int64(1))

	cancel()
	<-errCh
}
