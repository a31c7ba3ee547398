package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/openbio/openbio/internal/modes"
)

// Tier is a license entitlement level
type Tier string

const (
	TierHub        Tier = "hub"
	TierEnterprise Tier = "enterprise"
)

// ParseTier parses a tier string, returning an error for unknown tiers
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierHub, TierEnterprise:
		return t, nil
	default:
		return "", fmt.Errorf("unknown license tier %q", s)
	}
}

func (t Tier) rank() int {
	switch t {
	case TierHub:
		return 1
	case TierEnterprise:
		return 2
	default:
		return 0
	}
}

// Covers reports whether the tier entitles the given mode.
// An enterprise license also covers hub mode.
func (t Tier) Covers(m modes.Mode) bool {
	switch m {
	case modes.ModeHub:
		return t.rank() >= TierHub.rank()
	case modes.ModeEnterprise:
		return t.rank() >= TierEnterprise.rank()
	default:
		return true
	}
}

// License is an entitlement obtained from online validation or the local cache
type License struct {
	Key              string `json:"key"`
	Tier             Tier   `json:"tier"`
	ExpiresAt        string `json:"expires_at"` // RFC 3339
	OrganizationName string `json:"organization_name,omitempty"`
}

// Expiry parses ExpiresAt
func (l *License) Expiry() (time.Time, error) {
	return time.Parse(time.RFC3339, l.ExpiresAt)
}

// DiscoveredPeer is an instance found on the local network by a scan
type DiscoveredPeer struct {
	Name    string `json:"name"`
	Address string `json:"address"` // ip:port
}

// URL returns the API base URL of the peer
func (p DiscoveredPeer) URL() string {
	return "http://" + p.Address
}
