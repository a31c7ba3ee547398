package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/openbio/openbio/internal/modes"
)

// Validation errors for DeploymentConfig
var (
	ErrLabNameRequired = errors.New("lab name is required for hub mode")
	ErrAPIURLRequired  = errors.New("api url is required for spoke and enterprise modes")
	ErrInvalidAPIURL   = errors.New("api url must be an absolute http(s) url")
)

// DeploymentConfig is the user's deployment choice, persisted in the
// per-user config file and rewritten wholesale whenever setup completes.
type DeploymentConfig struct {
	Mode modes.Mode `json:"mode" toml:"mode"`
	// LabName is the advertised name in hub mode
	LabName string `json:"labName,omitempty" toml:"labName,omitempty"`
	// APIURL is the remote API base URL in spoke and enterprise modes
	APIURL string `json:"apiUrl,omitempty" toml:"apiUrl,omitempty"`
	// ServerPort is the preferred embedded service port in local and hub modes
	ServerPort uint16 `json:"serverPort" toml:"serverPort"`
}

// DefaultDeploymentConfig returns the first-run configuration
func DefaultDeploymentConfig() DeploymentConfig {
	return DeploymentConfig{Mode: modes.ModeUnconfigured}
}

// Validate checks the per-mode invariants
func (c DeploymentConfig) Validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}

	switch {
	case c.Mode == modes.ModeHub && strings.TrimSpace(c.LabName) == "":
		return ErrLabNameRequired
	case c.Mode.UsesRemoteEndpoint():
		if strings.TrimSpace(c.APIURL) == "" {
			return ErrAPIURLRequired
		}
		u, err := url.Parse(c.APIURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return ErrInvalidAPIURL
		}
	}
	return nil
}

// EffectiveAPIURL returns the API base URL the UI should talk to
func (c DeploymentConfig) EffectiveAPIURL() string {
	switch {
	case c.Mode.RunsLocalService():
		return fmt.Sprintf("http://localhost:%d", c.ServerPort)
	case c.Mode.UsesRemoteEndpoint():
		return c.APIURL
	default:
		return ""
	}
}

// ConfigEventName is the name of the UI notification carrying a ConfigEvent
const ConfigEventName = "openbio:config"

// ConfigEvent tells the UI which API endpoint to use after a configuration change
type ConfigEvent struct {
	APIURL string     `json:"apiUrl"`
	Mode   modes.Mode `json:"mode"`
	// Error is set when the configured mode could not be activated
	Error string `json:"error,omitempty"`
}

// NewConfigEvent builds the notification for an active configuration
func NewConfigEvent(cfg DeploymentConfig) ConfigEvent {
	return ConfigEvent{
		APIURL: cfg.EffectiveAPIURL(),
		Mode:   cfg.Mode,
	}
}
