package license

import (
	"golang.org/x/sys/windows/registry"
)

type registryFingerprinter struct{}

func platformFingerprinter() Fingerprinter {
	return registryFingerprinter{}
}

// MachineID reads the MachineGuid value written at OS install time
func (registryFingerprinter) MachineID() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", err
	}
	defer k.Close()

	guid, _, err := k.GetStringValue("MachineGuid")
	return guid, err
}
