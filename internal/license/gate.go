package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
	"github.com/openbio/openbio/internal/metrics"
	"github.com/openbio/openbio/internal/modes"
)

// OnlineValidator validates a key against the license server
type OnlineValidator interface {
	ValidateOnline(ctx context.Context, key, serverID string) (*domain.License, error)
}

// Store is where the last good license is kept between runs
type Store interface {
	Load() (*domain.License, error)
	Save(lic *domain.License) error
}

// Gate decides whether a mode that needs a license may be activated
type Gate struct {
	validator OnlineValidator
	store     Store
	serverID  func() string
	grace     time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewGate creates a license gate. A non-positive grace uses DefaultGracePeriod.
func NewGate(validator OnlineValidator, store Store, grace time.Duration, logger *zap.Logger) *Gate {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Gate{
		validator: validator,
		store:     store,
		serverID:  ServerID,
		grace:     grace,
		now:       time.Now,
		logger:    logger.Named("license-gate"),
	}
}

// Ensure returns the license that entitles mode, or an error explaining why
// mode may not be activated. Modes that need no license return (nil, nil).
//
// With a key the key is validated online and cached on success. Without one
// the cached license is revalidated online; when the server cannot be reached
// or fails on its side the cached license is checked offline instead.
func (g *Gate) Ensure(ctx context.Context, mode modes.Mode, key string) (*domain.License, error) {
	if !modes.RequiresLicense(mode) {
		return nil, nil
	}

	var lic *domain.License
	var err error
	if key != "" {
		lic, err = g.validator.ValidateOnline(ctx, key, g.serverID())
		if err != nil {
			return nil, err
		}
		g.remember(lic)
	} else {
		lic, err = g.fromCache(ctx, mode)
		if err != nil {
			return nil, err
		}
	}

	if !lic.Tier.Covers(mode) {
		return nil, &ValidationError{
			Kind:   ErrTierInsufficient,
			Reason: fmt.Sprintf("A %s license does not cover %s mode", lic.Tier, mode),
		}
	}
	return lic, nil
}

func (g *Gate) fromCache(ctx context.Context, mode modes.Mode) (*domain.License, error) {
	cached, err := g.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoCachedLicense) {
			return nil, &ValidationError{
				Kind:   ErrNoCachedLicense,
				Reason: fmt.Sprintf("A license key is required for %s mode", mode),
			}
		}
		return nil, err
	}

	lic, err := g.validator.ValidateOnline(ctx, cached.Key, g.serverID())
	if err == nil {
		g.remember(lic)
		return lic, nil
	}
	if !retriableOffline(err) {
		return nil, err
	}

	g.logger.Warn("license server unavailable, checking cached license offline", zap.Error(err))
	offlineErr := ValidateOffline(cached, g.now(), g.grace)
	metrics.RecordLicenseValidation("offline", outcome(offlineErr))
	if offlineErr != nil {
		return nil, offlineErr
	}
	return cached, nil
}

func (g *Gate) remember(lic *domain.License) {
	if err := g.store.Save(lic); err != nil {
		g.logger.Warn("failed to cache license", zap.Error(err))
	}
}
