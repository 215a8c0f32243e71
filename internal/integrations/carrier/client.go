package carrier

import (
	"context"
	"fmt"

	"github.com/BearBump/BoxTrack/internal/models"
	"github.com/pkg/errors"
)

type Client interface {
	GetTracking(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error)
}

var ErrEmptyPayload = errors.New("provider returned empty payload")

// ProviderError marks a failed carrier call, so callers can tell
// "carrier API failure" apart from "no data".
type ProviderError struct {
	Carrier  string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (carrier %q): %v", e.Provider, e.Carrier, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Router maps carrier codes to adapters. Unknown and empty codes go to the fallback.
type Router struct {
	clients  map[string]Client
	fallback Client
}

func NewRouter(fallback Client) *Router {
	return &Router{clients: map[string]Client{}, fallback: fallback}
}

// Register must only be called during startup.
func (r *Router) Register(code string, c Client) *Router {
	r.clients[code] = c
	return r
}

func (r *Router) For(code string) Client {
	if c, ok := r.clients[code]; ok {
		return c
	}
	return r.fallback
}

func (r *Router) Fetch(ctx context.Context, carrierCode, container string) (*models.TrackingPayload, error) {
	c := r.For(carrierCode)
	name := ProviderName(c)
	if c == nil {
		return nil, &ProviderError{Carrier: carrierCode, Provider: name, Err: errors.New("no provider configured")}
	}

	p, err := c.GetTracking(ctx, carrierCode, container)
	if err != nil {
		return nil, &ProviderError{Carrier: carrierCode, Provider: name, Err: err}
	}
	if p == nil {
		return nil, &ProviderError{Carrier: carrierCode, Provider: name, Err: ErrEmptyPayload}
	}
	if p.Provider == "" {
		p.Provider = name
	}
	return p, nil
}

// ProviderName is used for logs and the payload "provider" field.
func ProviderName(c Client) string {
	if n, ok := c.(interface{ Name() string }); ok {
		return n.Name()
	}
	if c == nil {
		return "none"
	}
	return fmt.Sprintf("%T", c)
}
