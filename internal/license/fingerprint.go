package license

import (
	"strings"
)

// UnknownServerID is reported when no machine identifier can be read
const UnknownServerID = "unknown"

// Fingerprinter reads a stable per-machine identifier
type Fingerprinter interface {
	MachineID() (string, error)
}

// ServerID returns the identifier of this machine, or UnknownServerID
func ServerID() string {
	return ServerIDFrom(platformFingerprinter())
}

// ServerIDFrom returns the identifier read by f, or UnknownServerID
func ServerIDFrom(f Fingerprinter) string {
	if f == nil {
		return UnknownServerID
	}
	id, err := f.MachineID()
	if err != nil {
		return UnknownServerID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return UnknownServerID
	}
	return id
}
