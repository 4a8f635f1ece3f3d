//go:build windows

package sysinfo

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const (
	cryptographyKey = `SOFTWARE\Microsoft\Cryptography`
	machineGUIDName = "MachineGuid"
)

// MachineGUID returns the MachineGuid value generated by Windows at install
// time.
func MachineGUID() (string, error) {
	// always read the 64-bit view, a 32-bit process would otherwise be
	// redirected to WOW6432Node where the value does not exist
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, cryptographyKey, registry.QUERY_VALUE|registry.WOW64_64KEY)
	if err != nil {
		return "", fmt.Errorf(`couldn't open registry key '%v': %w`, cryptographyKey, err)
	}
	defer k.Close()

	guid, _, err := k.GetStringValue(machineGUIDName)
	if err != nil {
		return "", fmt.Errorf(`couldn't get registry string value '%v\%v': %w`, cryptographyKey, machineGUIDName, err)
	}
	return guid, nil
}
