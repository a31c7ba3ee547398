package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/openbio"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate_InvalidControlPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Control.Port = tt.port

			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error for invalid port")
			}
		})
	}
}

func TestConfig_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero default service port", func(c *Config) { c.Service.DefaultPort = 0 }},
		{"zero port range", func(c *Config) { c.Service.PortRange = 0 }},
		{"zero startup timeout", func(c *Config) { c.Service.StartupTimeout = 0 }},
		{"missing validate url", func(c *Config) { c.License.ValidateURL = "" }},
		{"relative validate url", func(c *Config) { c.License.ValidateURL = "license/validate" }},
		{"zero license timeout", func(c *Config) { c.License.Timeout = 0 }},
		{"negative grace period", func(c *Config) { c.License.GracePeriod = -time.Hour }},
		{"missing discovery service", func(c *Config) { c.Discovery.Service = "" }},
		{"zero scan timeout", func(c *Config) { c.Discovery.ScanTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("OPENBIO_DATA_DIR", dataDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DataDir != dataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dataDir)
	}
	if cfg.Service.DefaultPort != 3000 {
		t.Errorf("Service.DefaultPort = %d, want 3000", cfg.Service.DefaultPort)
	}
	if cfg.License.GracePeriod != 30*24*time.Hour {
		t.Errorf("License.GracePeriod = %v, want 720h", cfg.License.GracePeriod)
	}
	if cfg.Discovery.ServiceType() != "_openbio._tcp.local." {
		t.Errorf("ServiceType() = %q", cfg.Discovery.ServiceType())
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "openbio.yaml")

	content := `
data_dir: ` + tmpDir + `
control:
  port: 5999
service:
  default_port: 4321
license:
  validate_url: "http://127.0.0.1:9999/api/license/validate"
logging:
  level: debug
  format: json
  file: logs/openbio.log
`
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Control.Port != 5999 {
		t.Errorf("Control.Port = %d, want 5999", cfg.Control.Port)
	}
	if cfg.Service.DefaultPort != 4321 {
		t.Errorf("Service.DefaultPort = %d, want 4321", cfg.Service.DefaultPort)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Logging.File != filepath.Join(tmpDir, "logs", "openbio.log") {
		t.Errorf("Logging.File = %q", cfg.Logging.File)
	}
	if cfg.DeploymentConfigPath() != filepath.Join(tmpDir, "config.toml") {
		t.Errorf("DeploymentConfigPath() = %q", cfg.DeploymentConfigPath())
	}
	if cfg.DatabasePath() != filepath.Join(tmpDir, "data", "openbio.db") {
		t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "openbio.yaml")
	if err := os.WriteFile(configFile, []byte("control:\n  port: 5999\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("OPENBIO_DATA_DIR", tmpDir)
	t.Setenv("OPENBIO_CONTROL_PORT", "6001")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Control.Port != 6001 {
		t.Errorf("Control.Port = %d, want 6001", cfg.Control.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "openbio.yaml")
	if err := os.WriteFile(configFile, []byte("control: [unterminated"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configFile); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLicenseConfig_ResolvedPurchaseURL(t *testing.T) {
	lc := LicenseConfig{ValidateURL: "https://example.com/api/license/validate"}
	if got := lc.ResolvedPurchaseURL(); got != "https://example.com/api/license/purchase" {
		t.Errorf("ResolvedPurchaseURL() = %q", got)
	}

	lc.PurchaseURL = "https://billing.example.com/trial"
	if got := lc.ResolvedPurchaseURL(); got != "https://billing.example.com/trial" {
		t.Errorf("ResolvedPurchaseURL() = %q", got)
	}
}
