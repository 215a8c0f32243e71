package pgtracking

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// PutSubmission stores the submission keyed by container. A repeated
// submission for the same container replaces the previous one.
func (s *Storage) PutSubmission(ctx context.Context, sub *models.Submission) error {
	user, err := json.Marshal(sub.User)
	if err != nil {
		return errors.Wrap(err, "marshal user snippet")
	}

	_, err = s.db.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (id, container, company, consent, "user", created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  container = EXCLUDED.container,
  company = EXCLUDED.company,
  consent = EXCLUDED.consent,
  "user" = EXCLUDED."user",
  created_at = EXCLUDED.created_at
`, s.submissions), sub.ID, sub.Container, sub.Company, sub.Consent, user, sub.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "upsert submission")
	}
	return nil
}

func (s *Storage) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var (
		sub  models.Submission
		user []byte
	)
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
SELECT id, container, company, consent, "user", created_at
FROM %s WHERE id = $1
`, s.submissions), id).Scan(&sub.ID, &sub.Container, &sub.Company, &sub.Consent, &user, &sub.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select submission")
	}
	if err := json.Unmarshal(user, &sub.User); err != nil {
		return nil, errors.Wrap(err, "unmarshal user snippet")
	}
	return &sub, nil
}
