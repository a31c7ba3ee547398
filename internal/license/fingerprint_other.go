//go:build !linux && !darwin && !windows

package license

import "errors"

type noFingerprinter struct{}

func platformFingerprinter() Fingerprinter {
	return noFingerprinter{}
}

func (noFingerprinter) MachineID() (string, error) {
	return "", errors.New("machine id not supported on this platform")
}
