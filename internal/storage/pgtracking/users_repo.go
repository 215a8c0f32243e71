package pgtracking

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// UpsertUser creates or updates the profile for u.Phone and increments the
// submission counter in the same statement. Empty incoming fields keep the
// stored values. Returns the counter after the increment.
func (s *Storage) UpsertUser(ctx context.Context, u models.UserSnippet, seenAt time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
INSERT INTO %[1]s AS u (phone, name, email, company, country, role, last_seen_at, submission_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,1)
ON CONFLICT (phone) DO UPDATE SET
  name = COALESCE(NULLIF(EXCLUDED.name, ''), u.name),
  email = COALESCE(NULLIF(EXCLUDED.email, ''), u.email),
  company = COALESCE(NULLIF(EXCLUDED.company, ''), u.company),
  country = COALESCE(NULLIF(EXCLUDED.country, ''), u.country),
  role = COALESCE(NULLIF(EXCLUDED.role, ''), u.role),
  last_seen_at = EXCLUDED.last_seen_at,
  submission_count = u.submission_count + 1
RETURNING submission_count
`, s.users), u.Phone, u.Name, u.Email, u.Company, u.Country, u.Role, seenAt.UTC()).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "upsert user")
	}
	return n, nil
}

func (s *Storage) GetUser(ctx context.Context, phone string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
SELECT phone, name, email, company, country, role, last_seen_at, submission_count
FROM %s WHERE phone = $1
`, s.users), phone).Scan(&p.Phone, &p.Name, &p.Email, &p.Company, &p.Country, &p.Role, &p.LastSeenAt, &p.SubmissionCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select user")
	}
	return &p, nil
}
