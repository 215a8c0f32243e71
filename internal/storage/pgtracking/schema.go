package pgtracking

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ident quotes a (possibly schema-qualified) table name.
func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  container TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  consent BOOLEAN NOT NULL,
  "user" JSONB NOT NULL DEFAULT '{}'::jsonb,
  created_at TIMESTAMPTZ NOT NULL
)`, s.submissions),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  phone TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT '',
  last_seen_at TIMESTAMPTZ NOT NULL,
  submission_count BIGINT NOT NULL DEFAULT 0
)`, s.users),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  container TEXT PRIMARY KEY,
  payload JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL
)`, s.cache),
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
