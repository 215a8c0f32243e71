package trackcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/BoxTrack/internal/cache"
	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

const DefaultTTL = 6 * time.Hour

// Store keeps one entry per container, last write wins.
type Store interface {
	GetCacheEntry(ctx context.Context, container string) (*models.CacheEntry, bool, error)
	PutCacheEntry(ctx context.Context, e *models.CacheEntry) error
}

// Lookup is the result of a cache read. Entry is nil on miss.
type Lookup struct {
	Entry *models.CacheEntry
	Fresh bool
}

type Cache struct {
	store Store
	ttl   time.Duration
}

func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) Lookup(ctx context.Context, container string, now time.Time) (Lookup, error) {
	e, ok, err := c.store.GetCacheEntry(ctx, container)
	if err != nil {
		return Lookup{}, errors.Wrap(err, "cache get")
	}
	if !ok || e == nil || e.Payload == nil {
		return Lookup{}, nil
	}
	return Lookup{Entry: e, Fresh: e.Fresh(now)}, nil
}

// Refresh stores payload as fresh for ttl starting at now.
func (c *Cache) Refresh(ctx context.Context, container string, payload *models.TrackingPayload, now time.Time) (*models.CacheEntry, error) {
	e := &models.CacheEntry{
		Container: container,
		Payload:   payload,
		UpdatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.PutCacheEntry(ctx, e); err != nil {
		return nil, errors.Wrap(err, "cache put")
	}
	return e, nil
}

// BytesStore keeps entries JSON-encoded in a key/value cache.
// Retention is how long the key physically lives; it must be >= freshness ttl
// so stale entries stay readable.
type BytesStore struct {
	c         cache.BytesCache
	retention time.Duration
}

func NewBytesStore(c cache.BytesCache, retention time.Duration) *BytesStore {
	return &BytesStore{c: c, retention: retention}
}

func key(container string) string { return "track:" + container }

func (s *BytesStore) GetCacheEntry(ctx context.Context, container string) (*models.CacheEntry, bool, error) {
	b, ok, err := s.c.Get(ctx, key(container))
	if err != nil || !ok {
		return nil, false, err
	}
	var e models.CacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal cache entry")
	}
	return &e, true, nil
}

func (s *BytesStore) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal cache entry")
	}
	return s.c.Set(ctx, key(e.Container), b, s.retention)
}
