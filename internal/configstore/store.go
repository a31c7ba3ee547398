// Package configstore persists the deployment configuration to a fixed
// per-user TOML file.
package configstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/openbio/openbio/internal/domain"
)

// Store reads and writes the deployment config file.
// A single running instance owns the file; there is no cross-process locking.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a Store for the config file at path
func New(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.Named("configstore"),
	}
}

// Path returns the config file path
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a config file has been written
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the persisted configuration, or the unconfigured default when
// the file is missing or cannot be parsed. A parse failure resets silently
// to the default (logged, never returned).
func (s *Store) Load() domain.DeploymentConfig {
	cfg := domain.DefaultDeploymentConfig()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read deployment config, using defaults",
				zap.String("path", s.path), zap.Error(err))
		}
		return cfg
	}

	var loaded domain.DeploymentConfig
	if _, err := toml.Decode(string(data), &loaded); err != nil {
		s.logger.Warn("failed to parse deployment config, using defaults",
			zap.String("path", s.path), zap.Error(err))
		return cfg
	}
	if loaded.Mode == "" {
		loaded.Mode = cfg.Mode
	}

	return loaded
}

// Save writes the configuration, creating parent directories as needed
func (s *Store) Save(cfg domain.DeploymentConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode deployment config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write atomically using a temp file
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	s.logger.Debug("saved deployment config",
		zap.String("path", s.path), zap.String("mode", cfg.Mode.String()))
	return nil
}
