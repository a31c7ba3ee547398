package license

import (
	"golang.org/x/sys/unix"
)

type sysctlFingerprinter struct{}

func platformFingerprinter() Fingerprinter {
	return sysctlFingerprinter{}
}

// MachineID returns the platform UUID reported by the kernel
func (sysctlFingerprinter) MachineID() (string, error) {
	return unix.Sysctl("kern.uuid")
}
