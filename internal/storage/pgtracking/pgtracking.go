package pgtracking

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// Tables holds configurable table names. Empty names fall back to defaults.
type Tables struct {
	Submissions string
	Cache       string
	Users       string
}

func (t Tables) withDefaults() Tables {
	if t.Submissions == "" {
		t.Submissions = "submissions"
	}
	if t.Cache == "" {
		t.Cache = "tracking_cache"
	}
	if t.Users == "" {
		t.Users = "users"
	}
	return t
}

type Storage struct {
	db *pgxpool.Pool

	// уже экранированные имена таблиц
	submissions string
	cache       string
	users       string
}

func New(connString string, tables Tables) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	t := tables.withDefaults()
	s := &Storage{
		db:          db,
		submissions: ident(t.Submissions),
		cache:       ident(t.Cache),
		users:       ident(t.Users),
	}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.Ping(ctx), "pg ping")
}

func (s *Storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
