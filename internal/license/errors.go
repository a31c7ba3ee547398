package license

import (
	"errors"
	"fmt"
)

// Failure kinds. A *ValidationError matches exactly one of these with errors.Is.
var (
	ErrNetwork            = errors.New("license server unreachable")
	ErrUnsuccessfulStatus = errors.New("license server returned an unsuccessful status")
	ErrLicenseInvalid     = errors.New("license invalid")
	ErrMalformedResponse  = errors.New("malformed license server response")
	ErrInvalidExpiry      = errors.New("invalid expiration date format")
	ErrExpired            = errors.New("license expired and requires online validation")
	ErrTierInsufficient   = errors.New("license tier does not cover the requested mode")
	ErrNoCachedLicense    = errors.New("no cached license")
)

// ValidationError carries a human-readable reason for a failed license
// operation alongside its failure kind.
type ValidationError struct {
	Kind error
	// Reason is the user-facing explanation
	Reason string
	// StatusCode is the HTTP status when Kind is ErrUnsuccessfulStatus
	StatusCode int
	// Err is the underlying cause, if any
	Err error
}

func (e *ValidationError) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches the failure kind
func (e *ValidationError) Is(target error) bool {
	return target == e.Kind
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Reason returns the user-facing reason of err, or err.Error() when err is
// not a *ValidationError.
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

// retriableOffline reports whether an online failure may fall back to the
// cached license: the server could not be reached or failed on its side.
func retriableOffline(err error) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	switch ve.Kind {
	case ErrNetwork:
		return true
	case ErrUnsuccessfulStatus:
		return ve.StatusCode >= 500
	default:
		return false
	}
}

// outcome is the metrics label for the result of a validation
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrUnsuccessfulStatus):
		return "status"
	case errors.Is(err, ErrLicenseInvalid):
		return "invalid"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrInvalidExpiry):
		return "invalid_expiry"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNoCachedLicense):
		return "no_cache"
	default:
		return "error"
	}
}
