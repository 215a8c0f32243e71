package carrier

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	name  string
	calls int
	out   *models.TrackingPayload
	err   error
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	s.calls++
	return s.out, s.err
}

func TestRouter_For(t *testing.T) {
	msc := &stubClient{name: "msc"}
	fb := &stubClient{name: "mock"}
	r := NewRouter(fb).Register("MSCU", msc)

	require.Same(t, msc, r.For("MSCU"))
	require.Same(t, fb, r.For("ZZZZ"))
	require.Same(t, fb, r.For(""))
}

func TestRouter_Fetch_OKSetsProvider(t *testing.T) {
	msc := &stubClient{name: "msc", out: &models.TrackingPayload{Status: "IN_TRANSIT"}}
	r := NewRouter(&stubClient{name: "mock"}).Register("MSCU", msc)

	p, err := r.Fetch(context.Background(), "MSCU", "MSCU1234566")
	require.NoError(t, err)
	require.Equal(t, "msc", p.Provider)
	require.Equal(t, 1, msc.calls)
}

func TestRouter_Fetch_ErrorIsProviderError(t *testing.T) {
	boom := errors.New("timeout")
	r := NewRouter(&stubClient{name: "mock", err: boom})

	_, err := r.Fetch(context.Background(), "", "ZZZZ1234568")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "mock", pe.Provider)
	require.ErrorIs(t, err, boom)
}

func TestRouter_Fetch_NilPayloadIsProviderError(t *testing.T) {
	r := NewRouter(&stubClient{name: "mock"})

	_, err := r.Fetch(context.Background(), "", "ZZZZ1234568")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestRouter_Fetch_NoFallback(t *testing.T) {
	r := NewRouter(nil)
	_, err := r.Fetch(context.Background(), "", "ZZZZ1234568")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
}
