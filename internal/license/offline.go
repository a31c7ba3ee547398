package license

import (
	"time"

	"github.com/openbio/openbio/internal/domain"
)

// DefaultGracePeriod is how long an expired license keeps working offline
const DefaultGracePeriod = 30 * 24 * time.Hour

// ValidateOffline accepts cached when now is no later than its expiry plus
// grace. It is a pure function of its inputs.
func ValidateOffline(cached *domain.License, now time.Time, grace time.Duration) error {
	if cached == nil {
		return &ValidationError{Kind: ErrNoCachedLicense}
	}

	expires, err := cached.Expiry()
	if err != nil {
		return &ValidationError{Kind: ErrInvalidExpiry, Reason: "Invalid expiration date format"}
	}

	if now.After(expires.Add(grace)) {
		return &ValidationError{Kind: ErrExpired, Reason: "License expired and requires online validation"}
	}
	return nil
}
