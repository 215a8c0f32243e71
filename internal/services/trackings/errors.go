package trackings

import (
	"fmt"

	"github.com/BearBump/BoxTrack/internal/integrations/carrier"
	"github.com/pkg/errors"
)

// Machine-readable reasons, stable across releases.
const (
	ReasonParseError  = "parse_error"
	ReasonNoConsent   = "no_consent"
	ReasonISO         = "iso"
	ReasonProvider    = "provider"
	ReasonPersistence = "persistence"
	ReasonNoRoute     = "no_route"
)

// ValidationError is a client-side problem with the request. Never retried.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// PersistenceError means a required store write failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

func newValidation(reason, msg string) error {
	return &ValidationError{Reason: reason, Message: msg}
}

// ErrNoConsent and ErrInvalidContainer are returned as *ValidationError.
var (
	ErrNoConsent        = newValidation(ReasonNoConsent, "consent is required")
	ErrInvalidContainer = newValidation(ReasonISO, "invalid container number")
)

// Reason classifies err into one of the reason codes. Unknown errors are
// reported as persistence failures since every other kind is explicit.
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	var pe *carrier.ProviderError
	if errors.As(err, &pe) {
		return ReasonProvider
	}
	return ReasonPersistence
}
