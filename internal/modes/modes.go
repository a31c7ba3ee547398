// Package modes defines the deployment modes the openbio binary can run in.
// The binary can run as:
// - unconfigured: first run, setup has not been completed
// - local: standalone, embedded data service bound to this machine
// - hub: embedded data service advertised to the lab network
// - spoke: client of a hub discovered on the lab network
// - enterprise: client of a remotely hosted deployment
package modes

import (
	"fmt"
	"strings"
)

// Mode represents a deployment mode
type Mode string

const (
	ModeUnconfigured Mode = "unconfigured"
	ModeLocal        Mode = "local"
	ModeHub          Mode = "hub"
	ModeSpoke        Mode = "spoke"
	ModeEnterprise   Mode = "enterprise"
)

// ValidModes lists all valid deployment modes
var ValidModes = []Mode{ModeUnconfigured, ModeLocal, ModeHub, ModeSpoke, ModeEnterprise}

// String returns the string representation of the Mode
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if a mode string is valid
func (m Mode) IsValid() bool {
	for _, valid := range ValidModes {
		if m == valid {
			return true
		}
	}
	return false
}

// ParseMode parses a mode string into a Mode, returning an error if invalid.
// An empty string parses as ModeUnconfigured.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeUnconfigured, nil
	}
	mode := Mode(strings.ToLower(s))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid mode %q, valid modes: %v", s, ValidModes)
	}
	return mode, nil
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if m == "" {
		return []byte(ModeUnconfigured), nil
	}
	return []byte(m), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// RunsLocalService reports whether the mode hosts the embedded data service
func (m Mode) RunsLocalService() bool {
	return m == ModeLocal || m == ModeHub
}

// Advertises reports whether the mode announces itself on the local network
func (m Mode) Advertises() bool {
	return m == ModeHub
}

// UsesRemoteEndpoint reports whether the mode talks to a configured remote API
func (m Mode) UsesRemoteEndpoint() bool {
	return m == ModeSpoke || m == ModeEnterprise
}

// RequiresLicense reports whether entering the mode needs a valid license.
// Spoke trusts the hub or enterprise deployment it connects to.
func RequiresLicense(m Mode) bool {
	return m == ModeHub || m == ModeEnterprise
}
