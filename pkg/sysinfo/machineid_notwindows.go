//go:build !windows

package sysinfo

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// MachineGUID returns the stable identifier of this machine: the systemd
// machine-id on Linux and the IOPlatformUUID on macOS.
func MachineGUID() (string, error) {
	id, err := host.HostID()
	if err != nil {
		return "", fmt.Errorf("get host id: %w", err)
	}
	return strings.TrimSpace(id), nil
}
