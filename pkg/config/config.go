package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/openbio/openbio/pkg/logging"
)

// AppDirName is the directory created under the per-user config directory
const AppDirName = "OpenBio"

// Config represents the process configuration of the openbio daemon.
// The user's deployment choice (mode, lab name, ...) is not part of it; that
// lives in the deployment config file managed by internal/configstore.
type Config struct {
	DataDir   string          `yaml:"data_dir" envconfig:"DATA_DIR"`
	Control   ControlConfig   `yaml:"control" envconfig:"CONTROL"`
	Service   ServiceConfig   `yaml:"service" envconfig:"SERVICE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Discovery DiscoveryConfig `yaml:"discovery" envconfig:"DISCOVERY"`
	Logging   logging.Config  `yaml:"logging" envconfig:"LOGGING"`
}

// ControlConfig contains the local control API server configuration
type ControlConfig struct {
	Host           string   `yaml:"host" envconfig:"HOST"`
	Port           int      `yaml:"port" envconfig:"PORT"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	// RateLimit applies to the endpoints that call out to the network (scan, trial)
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig configures per-client token bucket limiting
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerMinute int           `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	BurstSize         int           `yaml:"burst_size" envconfig:"BURST_SIZE"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
}

// ServiceConfig contains settings for the embedded data service
type ServiceConfig struct {
	// DefaultPort is used when a local/hub deployment config carries no port
	DefaultPort int `yaml:"default_port" envconfig:"DEFAULT_PORT"`
	// PortRange is how many consecutive ports are probed starting at the preferred one
	PortRange int `yaml:"port_range" envconfig:"PORT_RANGE"`
	// StartupTimeout bounds how long Spawn waits for the service to listen
	StartupTimeout time.Duration `yaml:"startup_timeout" envconfig:"STARTUP_TIMEOUT"`
	// ApplyMigrations runs the embedded migrations when the service opens its database
	ApplyMigrations bool `yaml:"apply_migrations" envconfig:"APPLY_MIGRATIONS"`
}

// LicenseConfig contains license validation configuration
type LicenseConfig struct {
	// ValidateURL is the remote validation endpoint
	ValidateURL string `yaml:"validate_url" envconfig:"VALIDATE_URL"`
	// PurchaseURL is the trial/purchase endpoint; derived from ValidateURL when empty
	PurchaseURL string `yaml:"purchase_url" envconfig:"PURCHASE_URL"`
	// Timeout bounds every remote license call
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// GracePeriod is how long after expiry a cached license is still honoured offline
	GracePeriod time.Duration `yaml:"grace_period" envconfig:"GRACE_PERIOD"`
	// KeyringService is the OS keyring service name used for the license cache
	KeyringService string `yaml:"keyring_service" envconfig:"KEYRING_SERVICE"`
}

// DiscoveryConfig contains local network discovery configuration
type DiscoveryConfig struct {
	Service string `yaml:"service" envconfig:"SERVICE"`
	Domain  string `yaml:"domain" envconfig:"DOMAIN"`
	// ScanTimeout is how long a scan listens for responses
	ScanTimeout time.Duration `yaml:"scan_timeout" envconfig:"SCAN_TIMEOUT"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("OPENBIO", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	if cfg.Logging.File != "" && !filepath.IsAbs(cfg.Logging.File) {
		cfg.Logging.File = filepath.Join(cfg.DataDir, cfg.Logging.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultDataDir returns the per-user directory holding the deployment config
// and the embedded database.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, AppDirName), nil
}

// DefaultConfig returns a Config with sensible default values.
// DataDir is left empty and resolved by Load.
func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			Host:           "127.0.0.1",
			Port:           4873,
			AllowedOrigins: []string{"*"},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				BurstSize:         5,
				CleanupInterval:   10 * time.Minute,
			},
		},
		Service: ServiceConfig{
			DefaultPort:     3000,
			PortRange:       100,
			StartupTimeout:  10 * time.Second,
			ApplyMigrations: true,
		},
		License: LicenseConfig{
			ValidateURL:    "https://license.openbio.app/api/license/validate",
			Timeout:        15 * time.Second,
			GracePeriod:    30 * 24 * time.Hour,
			KeyringService: "openbio",
		},
		Discovery: DiscoveryConfig{
			Service:     "_openbio._tcp",
			Domain:      "local.",
			ScanTimeout: 5 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Control.Port < 1 || c.Control.Port > 65535 {
		return fmt.Errorf("invalid control port: %d", c.Control.Port)
	}

	if c.Control.RateLimit.Enabled && (c.Control.RateLimit.RequestsPerMinute < 1 || c.Control.RateLimit.BurstSize < 1) {
		return fmt.Errorf("rate limit requests_per_minute and burst_size must be positive")
	}

	if c.Service.DefaultPort < 1 || c.Service.DefaultPort > 65535 {
		return fmt.Errorf("invalid default service port: %d", c.Service.DefaultPort)
	}

	if c.Service.PortRange < 1 {
		return fmt.Errorf("port range must be positive")
	}

	if c.Service.StartupTimeout <= 0 {
		return fmt.Errorf("service startup timeout must be positive")
	}

	if c.License.ValidateURL == "" {
		return fmt.Errorf("license validate_url is required")
	}
	if _, err := url.ParseRequestURI(c.License.ValidateURL); err != nil {
		return fmt.Errorf("invalid license validate_url: %w", err)
	}

	if c.License.Timeout <= 0 {
		return fmt.Errorf("license timeout must be positive")
	}

	if c.License.GracePeriod < 0 {
		return fmt.Errorf("license grace period cannot be negative")
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	if c.Discovery.Service == "" {
		return fmt.Errorf("discovery service type is required")
	}

	if c.Discovery.ScanTimeout <= 0 {
		return fmt.Errorf("discovery scan timeout must be positive")
	}

	return nil
}

// Address returns the control server address
func (c *ControlConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ResolvedPurchaseURL returns the trial/purchase endpoint
func (c *LicenseConfig) ResolvedPurchaseURL() string {
	if c.PurchaseURL != "" {
		return c.PurchaseURL
	}
	return strings.Replace(c.ValidateURL, "/validate", "/purchase", 1)
}

// ServiceType returns the fully qualified DNS-SD service type
func (c *DiscoveryConfig) ServiceType() string {
	return c.Service + "." + c.Domain
}

// DeploymentConfigPath returns the path of the deployment config file
func (c *Config) DeploymentConfigPath() string {
	return filepath.Join(c.DataDir, "config.toml")
}

// DatabasePath returns the path of the embedded data service database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "data", "openbio.db")
}
