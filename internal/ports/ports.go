// Package ports finds a locally bindable TCP port near a preferred value.
package ports

import (
	"fmt"
	"net"
)

// DefaultRange is how many consecutive ports FindAvailablePort probes
const DefaultRange = 100

// FindAvailablePort probes preferred, preferred+1, ... preferred+span-1 by
// binding each on all interfaces and releasing it immediately, and returns
// the first one that binds. If none bind, preferred is returned unchanged.
//
// The probe releases the port before returning, so a later bind by the caller
// can still fail.
func FindAvailablePort(preferred uint16, span int) uint16 {
	if span <= 0 {
		span = DefaultRange
	}

	for i := 0; i < span; i++ {
		candidate := int(preferred) + i
		if candidate > 65535 {
			break
		}
		if IsAvailable(uint16(candidate)) {
			return uint16(candidate)
		}
	}
	return preferred
}

// IsAvailable reports whether port can currently be bound on all interfaces
func IsAvailable(port uint16) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
