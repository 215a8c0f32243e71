package pgtracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetCacheEntry(ctx context.Context, container string) (*models.CacheEntry, bool, error) {
	var (
		e       models.CacheEntry
		payload []byte
	)
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
SELECT container, payload, updated_at, expires_at
FROM %s WHERE container = $1
`, s.cache), container).Scan(&e.Container, &payload, &e.UpdatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "select cache entry")
	}

	e.Payload = &models.TrackingPayload{}
	if err := json.Unmarshal(payload, e.Payload); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal cache payload")
	}
	return &e, true, nil
}

func (s *Storage) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return errors.Wrap(err, "marshal cache payload")
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (container, payload, updated_at, expires_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (container) DO UPDATE SET
  payload = EXCLUDED.payload,
  updated_at = EXCLUDED.updated_at,
  expires_at = EXCLUDED.expires_at
`, s.cache), e.Container, payload, e.UpdatedAt.UTC(), e.ExpiresAt.UTC())
	if err != nil {
		return errors.Wrap(err, "upsert cache entry")
	}
	return nil
}
