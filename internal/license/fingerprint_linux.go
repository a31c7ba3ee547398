package license

import (
	"errors"
	"os"
	"strings"
)

var linuxMachineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
	"/sys/class/dmi/id/product_uuid",
}

type fileFingerprinter struct {
	paths []string
}

func platformFingerprinter() Fingerprinter {
	return fileFingerprinter{paths: linuxMachineIDPaths}
}

// MachineID returns the content of the first non-empty identifier file
func (f fileFingerprinter) MachineID() (string, error) {
	for _, p := range f.paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}
	return "", errors.New("no machine id file found")
}
