// Package logging builds the zap loggers used by the openbio daemon and the
// embedded data service.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains logging configuration, embedded in the process configuration
type Config struct {
	// Level is the minimum log level: debug, info, warn, error
	Level string `yaml:"level" envconfig:"LEVEL"`
	// Format is the output format: json or text
	Format string `yaml:"format" envconfig:"FORMAT"`
	// File additionally writes logs to this path. Relative paths are
	// resolved against the data directory by the caller.
	File string `yaml:"file" envconfig:"FILE"`
}

// DefaultConfig returns the logging defaults: info level, human readable
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
	}
}

// Validate rejects unknown levels and formats
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); c.Level != "" && err != nil {
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid log format %q (want json or text)", c.Format)
	}
}

// NewLogger creates a zap logger from cfg. Text output uses the development
// encoder without stack traces on warnings.
func NewLogger(cfg Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.Development = false
		if cfg.File == "" {
			zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	zapCfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
		zapCfg.ErrorOutputPaths = append(zapCfg.ErrorOutputPaths, cfg.File)
	}

	return zapCfg.Build()
}

// ParseLevel converts a level name to zapcore.Level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zap.InfoLevel
	}
	return lvl
}
