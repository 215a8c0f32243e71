package trackings_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/BoxTrack/internal/cache/trackcache"
	"github.com/BearBump/BoxTrack/internal/carriers"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier"
	"github.com/BearBump/BoxTrack/internal/integrations/carrier/fake"
	"github.com/BearBump/BoxTrack/internal/iso6346"
	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/BearBump/BoxTrack/internal/services/trackings"
	"github.com/stretchr/testify/require"
)

type store struct {
	cache   map[string]*models.CacheEntry
	subs    int
	subsErr error
}

func (s *store) GetCacheEntry(ctx context.Context, container string) (*models.CacheEntry, bool, error) {
	e, ok := s.cache[container]
	return e, ok, nil
}

func (s *store) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	s.cache[e.Container] = e
	return nil
}

func (s *store) PutSubmission(ctx context.Context, sub *models.Submission) error {
	s.subs++
	return s.subsErr
}

func (s *store) UpsertUser(ctx context.Context, u models.UserSnippet, seenAt time.Time) (int64, error) {
	return 1, nil
}

type failing struct{}

func (failing) Name() string { return "msc" }

func (failing) GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	return nil, errors.New("upstream timeout")
}

func newServer(t *testing.T) (*httptest.Server, *store) {
	t.Helper()
	reg, err := carriers.Load("")
	require.NoError(t, err)

	st := &store{cache: map[string]*models.CacheEntry{}}
	router := carrier.NewRouter(fake.New()).Register("MAEU", failing{})
	svc := trackings.New(trackings.Deps{
		Registry:    reg,
		Validator:   iso6346.Validator{},
		Providers:   router,
		Cache:       trackcache.New(st, 6*time.Hour),
		Submissions: st,
		Users:       st,
	}, trackings.Options{})

	srv := httptest.NewServer(New(svc).Routes(nil))
	t.Cleanup(srv.Close)
	return srv, st
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func TestAPI_Carriers(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/carriers")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	var list []models.Carrier
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.NotEmpty(t, list)
}

func TestAPI_Resolve(t *testing.T) {
	srv, _ := newServer(t)

	m := decodeBody(t, post(t, srv.URL+"/api/resolve", `{"container":"MSCU1234565"}`))
	require.Equal(t, "MSCU", m["code"])

	m = decodeBody(t, post(t, srv.URL+"/api/resolve", `{"container":"ZZZZ1234568"}`))
	require.Empty(t, m)
}

func TestAPI_Init(t *testing.T) {
	srv, st := newServer(t)

	resp := post(t, srv.URL+"/api/track/init", `{"container":"MSCU1234566","consent":true,"user":{"phone":"+1 555"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decodeBody(t, resp)
	require.Equal(t, true, m["ok"])
	require.Equal(t, "MSCU1234566", m["id"])
	require.Equal(t, "MSCU", m["company"])
	require.Equal(t, 1, st.subs)
}

func TestAPI_Init_Errors(t *testing.T) {
	srv, st := newServer(t)

	cases := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"bad json", `{`, http.StatusBadRequest, trackings.ReasonParseError},
		{"no consent", `{"container":"MSCU1234566","consent":false}`, http.StatusBadRequest, trackings.ReasonNoConsent},
		{"bad check digit", `{"container":"MSCU1234567","consent":true}`, http.StatusBadRequest, trackings.ReasonISO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/api/track/init", tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			m := decodeBody(t, resp)
			require.Equal(t, tc.reason, m["reason"])
			require.NotEmpty(t, m["requestId"])
			require.NotEmpty(t, m["error"])
		})
	}
	require.Zero(t, st.subs)

	st.subsErr = errors.New("pg down")
	resp := post(t, srv.URL+"/api/track/init", `{"container":"MSCU1234566","consent":true}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, trackings.ReasonPersistence, decodeBody(t, resp)["reason"])
}

func TestAPI_Details_CacheHeader(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv.URL+"/api/track/details", `{"container":"ZZZZ1234568"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, trackings.SourceFresh, resp.Header.Get(HeaderCache))
	require.Equal(t, "mock", decodeBody(t, resp)["provider"])

	resp = post(t, srv.URL+"/api/track/details", `{"container":"ZZZZ1234568"}`)
	require.Equal(t, trackings.SourceCache, resp.Header.Get(HeaderCache))
}

func TestAPI_Details_ProviderError(t *testing.T) {
	srv, st := newServer(t)

	resp := post(t, srv.URL+"/api/track/details", `{"container":"MAEU1234567"}`)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, trackings.ReasonProvider, decodeBody(t, resp)["reason"])
	require.Empty(t, st.cache)
}

func TestAPI_NoRoute_AndRequestIDReuse(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/nope", nil)
	require.NoError(t, err)
	req.Header.Set(HeaderRequestID, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "abc-123", resp.Header.Get(HeaderRequestID))
	m := decodeBody(t, resp)
	require.Equal(t, trackings.ReasonNoRoute, m["reason"])
	require.Equal(t, "abc-123", m["requestId"])

	// неверный метод на существующем пути тоже no_route
	resp2, err := http.Get(srv.URL + "/api/track/init")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestAPI_CORSPreflight(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/track/details", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Less(t, resp.StatusCode, 300)
}

func TestAPI_EmptyBodyIsEmptyObject(t *testing.T) {
	srv, st := newServer(t)

	cases := []struct {
		path   string
		status int
		reason string
	}{
		{"/api/resolve", http.StatusOK, ""},
		{"/api/track/init", http.StatusBadRequest, trackings.ReasonNoConsent},
		{"/api/track/details", http.StatusBadRequest, trackings.ReasonISO},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tc.path, "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tc.status, resp.StatusCode)
			m := decodeBody(t, resp)
			if tc.reason == "" {
				require.Empty(t, m)
				return
			}
			require.Equal(t, tc.reason, m["reason"])
		})
	}
	require.Zero(t, st.subs)
}

func TestAPI_PlainOptions(t *testing.T) {
	srv, _ := newServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/anything", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, decodeBody(t, resp)["ok"])
	require.NotEmpty(t, resp.Header.Get(HeaderRequestID))
}
