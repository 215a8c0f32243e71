package prefetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/BoxTrack/internal/broker/messages"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/carriers"
	"github.com/BearBump/BoxTrack/internal/iso6346"
	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

type Fetcher interface {
	Fetch(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error)
}

type TrackingCache interface {
	Lookup(ctx context.Context, container string, now time.Time) (trackcache.Lookup, error)
	Refresh(ctx context.Context, container string, payload *models.TrackingPayload, now time.Time) (*models.CacheEntry, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Outcome of a single warm attempt.
type Outcome string

const (
	OutcomeFetched     Outcome = "fetched"
	OutcomeAlreadyWarm Outcome = "already_warm"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
	OutcomeInvalid     Outcome = "invalid"
)

var ErrInvalidContainer = errors.New("invalid container number")

type Item struct {
	CarrierCode string `json:"carrierCode"`
	Container   string `json:"container"`
}

// Warmer fills the tracking cache ahead of the first details call for a
// freshly submitted container.
type Warmer struct {
	providers Fetcher
	cache     TrackingCache
	rl        RateLimiter
	reg       *carriers.Registry
	validator iso6346.Validator

	concurrency        int
	providerTimeout    time.Duration
	rateLimitPerMinute int64
	carrierLimits      map[string]int64

	now func() time.Time

	startedAtUnixNano   int64
	lastMessageUnixNano atomic.Int64
	totalReceived       atomic.Int64
	totalFetched        atomic.Int64
	totalSkipped        atomic.Int64
	totalRateLimited    atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(providers Fetcher, cache TrackingCache, rl RateLimiter) *Warmer {
	return &Warmer{
		providers:          providers,
		cache:              cache,
		rl:                 rl,
		concurrency:        4,
		providerTimeout:    15 * time.Second,
		rateLimitPerMinute: 60,
		carrierLimits:      map[string]int64{},
		now:                time.Now,
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (w *Warmer) WithSettings(concurrency int, providerTimeout time.Duration, rlPerMin int64) *Warmer {
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if providerTimeout > 0 {
		w.providerTimeout = providerTimeout
	}
	if rlPerMin > 0 {
		w.rateLimitPerMinute = rlPerMin
	}
	return w
}

// WithResolver makes WarmOne fill an empty carrier code from the registry.
func (w *Warmer) WithResolver(reg *carriers.Registry, v iso6346.Validator) *Warmer {
	w.reg = reg
	w.validator = v
	return w
}

// WithCarrierRateLimits overrides the per-minute limit for specific carrier codes.
func (w *Warmer) WithCarrierRateLimits(limits map[string]int) *Warmer {
	for code, n := range limits {
		if n > 0 {
			w.carrierLimits[code] = int64(n)
		}
	}
	return w
}

type Stats struct {
	StartedAt        time.Time  `json:"startedAt"`
	LastMessageAt    *time.Time `json:"lastMessageAt,omitempty"`
	TotalReceived    int64      `json:"totalReceived"`
	TotalFetched     int64      `json:"totalFetched"`
	TotalSkipped     int64      `json:"totalSkipped"`
	TotalRateLimited int64      `json:"totalRateLimited"`
	TotalErrors      int64      `json:"totalErrors"`
	InFlight         int64      `json:"inFlight"`
	LastError        string     `json:"lastError,omitempty"`
}

func (w *Warmer) Stats() Stats {
	st := Stats{
		StartedAt:        time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalReceived:    w.totalReceived.Load(),
		TotalFetched:     w.totalFetched.Load(),
		TotalSkipped:     w.totalSkipped.Load(),
		TotalRateLimited: w.totalRateLimited.Load(),
		TotalErrors:      w.totalErrors.Load(),
		InFlight:         w.inFlight.Load(),
	}
	if n := w.lastMessageUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastMessageAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

// HandleMessage is the kafka handler for submission.recorded.
// Only context cancellation is returned as an error: a bad message or a
// failed prefetch must not block the partition.
func (w *Warmer) HandleMessage(ctx context.Context, key, value []byte) error {
	w.lastMessageUnixNano.Store(w.now().UTC().UnixNano())
	w.totalReceived.Add(1)

	var m messages.SubmissionRecorded
	if err := json.Unmarshal(value, &m); err != nil {
		w.recordError(errors.Wrap(err, "decode submission.recorded"))
		slog.Warn("skip bad message", "key", string(key), "error", err.Error())
		return nil
	}
	if m.Container == "" {
		w.totalSkipped.Add(1)
		return nil
	}

	_, err := w.WarmOne(ctx, Item{CarrierCode: m.CarrierCode, Container: m.Container})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		slog.Error("prefetch", "container", m.Container, "carrier", m.CarrierCode, "request_id", m.RequestID, "error", err.Error())
	}
	return nil
}

// Warm processes a batch with bounded concurrency.
func (w *Warmer) Warm(ctx context.Context, items []Item) map[Outcome]int {
	out := make(map[Outcome]int)
	var mu sync.Mutex

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, it := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(it Item) {
			defer func() {
				<-sem
				wg.Done()
			}()
			o, err := w.WarmOne(ctx, it)
			if err != nil {
				slog.Error("prefetch", "container", it.Container, "error", err.Error())
			}
			mu.Lock()
			out[o]++
			mu.Unlock()
		}(it)
	}
	wg.Wait()
	return out
}

// WarmOne validates the container, resolves its carrier and fetches it
// unless the cache entry is still fresh.
func (w *Warmer) WarmOne(ctx context.Context, it Item) (Outcome, error) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	it.Container = iso6346.Normalize(it.Container)
	if !w.validator.Validate(it.Container) {
		err := errors.Wrapf(ErrInvalidContainer, "container %q", it.Container)
		w.recordError(err)
		return OutcomeInvalid, err
	}
	if w.reg != nil {
		it.CarrierCode = w.reg.Resolve(it.CarrierCode, it.Container)
	}

	now := w.now().UTC()

	if l, err := w.cache.Lookup(ctx, it.Container, now); err == nil && l.Fresh {
		w.totalSkipped.Add(1)
		return OutcomeAlreadyWarm, nil
	}

	if w.rl != nil && w.rateLimitPerMinute > 0 {
		limit := w.rateLimitPerMinute
		if n, ok := w.carrierLimits[it.CarrierCode]; ok {
			limit = n
		}
		code := it.CarrierCode
		if code == "" {
			code = "_"
		}
		minuteKey := fmt.Sprintf("rl:prefetch:%s:%s", code, now.Format("200601021504"))
		allowed, n, err := w.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
		if err != nil {
			w.recordError(err)
			return OutcomeFailed, err
		}
		if !allowed {
			// перевозчик перегружен: кэш заполнится при первом details
			slog.Warn("rate limit exceeded", "carrier", it.CarrierCode, "count", n)
			w.totalRateLimited.Add(1)
			return OutcomeRateLimited, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	payload, err := w.providers.Fetch(fetchCtx, it.CarrierCode, it.Container)
	cancel()
	if err != nil {
		w.recordError(err)
		return OutcomeFailed, err
	}

	if _, err := w.cache.Refresh(ctx, it.Container, payload, now); err != nil {
		w.recordError(err)
		return OutcomeFailed, err
	}
	w.totalFetched.Add(1)
	return OutcomeFetched, nil
}

func (w *Warmer) recordError(err error) {
	w.totalErrors.Add(1)
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}
