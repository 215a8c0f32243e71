package trackings

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/BearBump/BoxTrack/internal/broker/messages"
	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/carriers"
	"github.com/BearBump/BoxTrack/internal/iso6346"
	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/BearBump/BoxTrack/internal/reqlog"
)

const (
	SourceCache = "cache"
	SourceFresh = "fresh"
	SourceStale = "stale"

	defaultProviderTimeout = 15 * time.Second
	defaultPublishTimeout  = 2 * time.Second
)

type Fetcher interface {
	Fetch(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error)
}

type TrackingCache interface {
	Lookup(ctx context.Context, container string, now time.Time) (trackcache.Lookup, error)
	Refresh(ctx context.Context, container string, payload *models.TrackingPayload, now time.Time) (*models.CacheEntry, error)
}

type SubmissionStore interface {
	PutSubmission(ctx context.Context, sub *models.Submission) error
}

type UserStore interface {
	UpsertUser(ctx context.Context, u models.UserSnippet, seenAt time.Time) (int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Options struct {
	ProviderTimeout time.Duration
	// ServeStale returns an expired entry when the provider fails.
	ServeStale bool
	// UserUpsertBestEffort turns a failed profile upsert into a warning.
	UserUpsertBestEffort bool
	Topic                string
	// PublishTimeout bounds how long Init waits for the broker.
	PublishTimeout time.Duration
}

type Deps struct {
	Registry    *carriers.Registry
	Validator   iso6346.Validator
	Providers   Fetcher
	Cache       TrackingCache
	Submissions SubmissionStore
	Users       UserStore
	// Publisher is optional.
	Publisher Publisher
}

type Service struct {
	reg       *carriers.Registry
	validator iso6346.Validator
	providers Fetcher
	cache     TrackingCache
	subs      SubmissionStore
	users     UserStore
	pub       Publisher
	opts      Options

	now func() time.Time
}

func New(d Deps, opts Options) *Service {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = defaultProviderTimeout
	}
	if opts.Topic == "" {
		opts.Topic = messages.SubmissionRecordedTopic
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &Service{
		reg:       d.Registry,
		validator: d.Validator,
		providers: d.Providers,
		cache:     d.Cache,
		subs:      d.Submissions,
		users:     d.Users,
		pub:       d.Publisher,
		opts:      opts,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Carriers() []models.Carrier {
	return s.reg.List()
}

// Resolve guesses the carrier by container prefix. No side effects.
func (s *Service) Resolve(container string) (models.Carrier, bool) {
	code := s.reg.Guess(iso6346.Normalize(container))
	if code == "" {
		return models.Carrier{}, false
	}
	return s.reg.Lookup(code)
}

type InitRequest struct {
	Company   string
	Container string
	Consent   bool
	User      models.UserSnippet
}

type InitResult struct {
	ID      string
	Company string
}

func (s *Service) Init(ctx context.Context, req InitRequest) (*InitResult, error) {
	if !req.Consent {
		reqlog.Step(ctx, "init_no_consent")
		return nil, ErrNoConsent
	}

	container := iso6346.Normalize(req.Container)
	if !s.validator.Validate(container) {
		reqlog.Step(ctx, "init_iso", "container", container, "valid", false)
		return nil, ErrInvalidContainer
	}
	reqlog.Step(ctx, "init_iso", "container", container, "valid", true)

	code := s.reg.Resolve(req.Company, container)
	now := s.now().UTC()

	sub := &models.Submission{
		ID:        container,
		Container: container,
		Company:   code,
		Consent:   true,
		User:      req.User,
		CreatedAt: now,
	}
	reqlog.Step(ctx, "ddb_put_submission_start", "id", sub.ID, "company", code)
	if err := s.subs.PutSubmission(ctx, sub); err != nil {
		reqlog.Error(ctx, "ddb_put_submission_error", "err", err)
		return nil, &PersistenceError{Op: "put submission", Err: err}
	}
	reqlog.Step(ctx, "ddb_put_submission_done")

	phone := NormalizePhone(req.User.Phone)
	if phone == "" {
		reqlog.Step(ctx, "users_skip_no_phone")
	} else {
		u := req.User
		u.Phone = phone
		reqlog.Step(ctx, "users_put_start", "phone", phone)
		n, err := s.users.UpsertUser(ctx, u, now)
		switch {
		case err != nil && s.opts.UserUpsertBestEffort:
			reqlog.Warn(ctx, "users_put_error", "err", err)
		case err != nil:
			reqlog.Error(ctx, "users_put_error", "err", err)
			return nil, &PersistenceError{Op: "upsert user", Err: err}
		default:
			reqlog.Step(ctx, "users_put_done", "submissions", n)
		}
	}

	s.publish(ctx, messages.SubmissionRecorded{
		ID:          sub.ID,
		Container:   container,
		CarrierCode: code,
		Phone:       phone,
		RecordedAt:  now,
		RequestID:   reqlog.RequestID(ctx),
	})

	return &InitResult{ID: sub.ID, Company: code}, nil
}

func (s *Service) publish(ctx context.Context, m messages.SubmissionRecorded) {
	if s.pub == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		reqlog.Warn(ctx, "publish_error", "err", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	if err := s.pub.Publish(pubCtx, s.opts.Topic, []byte(m.Container), b); err != nil {
		// событие вспомогательное, запрос не валим
		reqlog.Warn(ctx, "publish_error", "topic", s.opts.Topic, "err", err)
		return
	}
	reqlog.Debug(ctx, "publish_done", "topic", s.opts.Topic)
}

type DetailsRequest struct {
	Company   string
	Container string
}

type DetailsResult struct {
	Payload *models.TrackingPayload
	Source  string
}

func (s *Service) Details(ctx context.Context, req DetailsRequest) (*DetailsResult, error) {
	container := iso6346.Normalize(req.Container)
	if !s.validator.Validate(container) {
		reqlog.Step(ctx, "details_iso", "container", container, "valid", false)
		return nil, ErrInvalidContainer
	}

	code := s.reg.Resolve(req.Company, container)
	now := s.now().UTC()

	reqlog.Step(ctx, "cache_get_start", "container", container)
	cached, err := s.cache.Lookup(ctx, container, now)
	if err != nil {
		// ошибка чтения кэша = промах
		reqlog.Warn(ctx, "cache_get_error", "err", err)
		cached = trackcache.Lookup{}
	}
	reqlog.Step(ctx, "cache_get_done", "hit", cached.Entry != nil, "fresh", cached.Fresh)
	if cached.Fresh {
		return &DetailsResult{Payload: cached.Entry.Payload, Source: SourceCache}, nil
	}

	reqlog.Step(ctx, "provider_fetch_start", "carrier", code)
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.ProviderTimeout)
	payload, err := s.providers.Fetch(fetchCtx, code, container)
	cancel()
	if err != nil {
		reqlog.Error(ctx, "provider_fetch_error", "carrier", code, "err", err)
		if s.opts.ServeStale && cached.Entry != nil {
			reqlog.Warn(ctx, "serve_stale", "updated_at", cached.Entry.UpdatedAt)
			return &DetailsResult{Payload: cached.Entry.Payload, Source: SourceStale}, nil
		}
		return nil, err
	}
	reqlog.Step(ctx, "provider_fetch_done", "provider", payload.Provider, "status", payload.Status)

	reqlog.Step(ctx, "cache_put_start")
	if _, err := s.cache.Refresh(ctx, container, payload, now); err != nil {
		reqlog.Warn(ctx, "cache_put_error", "err", err)
	} else {
		reqlog.Step(ctx, "cache_put_done")
	}

	return &DetailsResult{Payload: payload, Source: SourceFresh}, nil
}

// NormalizePhone keeps digits and a leading '+'. Returns "" when no digits remain.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	hasDigit := false
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			hasDigit = true
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if !hasDigit {
		return ""
	}
	return b.String()
}
