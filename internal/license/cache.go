package license

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
)

// cacheUser is the keyring account the license record is stored under
const cacheUser = "license"

// Cache persists the last successfully validated license in the OS keyring
type Cache struct {
	service string
	logger  *zap.Logger
}

// NewCache creates a keyring-backed license cache for service
func NewCache(service string, logger *zap.Logger) *Cache {
	return &Cache{
		service: service,
		logger:  logger.Named("license-cache"),
	}
}

// Load returns the cached license, or ErrNoCachedLicense when none is stored
func (c *Cache) Load() (*domain.License, error) {
	raw, err := keyring.Get(c.service, cacheUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, &ValidationError{Kind: ErrNoCachedLicense}
		}
		return nil, fmt.Errorf("failed to read cached license: %w", err)
	}

	var lic domain.License
	if err := json.Unmarshal([]byte(raw), &lic); err != nil {
		c.logger.Warn("discarding unreadable cached license", zap.Error(err))
		return nil, &ValidationError{Kind: ErrNoCachedLicense, Err: err}
	}
	return &lic, nil
}

// Save replaces the cached license
func (c *Cache) Save(lic *domain.License) error {
	data, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("failed to marshal license: %w", err)
	}
	if err := keyring.Set(c.service, cacheUser, string(data)); err != nil {
		return fmt.Errorf("failed to store license: %w", err)
	}
	c.logger.Debug("license cached", zap.String("tier", string(lic.Tier)))
	return nil
}

// Clear removes the cached license. Clearing an empty cache is not an error.
func (c *Cache) Clear() error {
	if err := keyring.Delete(c.service, cacheUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to clear cached license: %w", err)
	}
	return nil
}
