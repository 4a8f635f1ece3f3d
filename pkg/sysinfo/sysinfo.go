// Package sysinfo collects the operating system identity reported to the
// device management server.
package sysinfo

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/fleetdm/dmagent/pkg/constant"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/host"
)

// Info is the host description sent along with a registration request.
type Info struct {
	// Hostname is the machine name.
	Hostname string
	// OSPlatform is the platform name sent in the request payload, e.g.
	// "Windows".
	OSPlatform string
	// OSFamily is the platform family sent in the platform query parameter,
	// e.g. "Windows NT".
	OSFamily string
	// Arch is "x86_64", "x86" or empty for any other CPU type.
	Arch string
	// OSVersion is the full OS version, or constant.UnknownOSVersion.
	OSVersion string
	// Major and Minor are the leading OS version numbers, 0.0 if unknown.
	Major int
	Minor int
}

// Collect gathers the host description. It never fails: anything that cannot
// be detected is replaced by its documented fallback.
func Collect() Info {
	info := Info{
		OSPlatform: osPlatform(runtime.GOOS),
		OSFamily:   osFamily(runtime.GOOS),
		OSVersion:  constant.UnknownOSVersion,
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.Debug().Err(err).Msg("get hostname")
	}
	info.Hostname = hostname

	kernelArch, err := host.KernelArch()
	if err != nil {
		log.Debug().Err(err).Msg("get kernel arch")
		kernelArch = runtime.GOARCH
	}
	info.Arch = NormalizeArch(kernelArch)

	if version, err := osVersion(); err != nil {
		log.Debug().Err(err).Msg("get os version")
	} else if version != "" {
		info.OSVersion = version
		info.Major, info.Minor = ParseMajorMinor(version)
	}

	return info
}

// NormalizeArch maps a CPU architecture name to the names understood by the
// device management server.
func NormalizeArch(arch string) string {
	switch strings.ToLower(arch) {
	case "x86_64", "amd64", "x64":
		return "x86_64"
	case "x86", "386", "i386", "i686":
		return "x86"
	default:
		return ""
	}
}

// ParseMajorMinor extracts the two leading numbers of a dotted version
// string. Components that are not numbers are reported as 0.0.
func ParseMajorMinor(version string) (int, int) {
	// drop anything after the version proper, e.g. "10.0.19045 Build 19045"
	if i := strings.IndexAny(version, " -+"); i >= 0 {
		version = version[:i]
	}
	parts := strings.SplitN(version, ".", 3)
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0
	}
	minor := 0
	if len(parts) > 1 {
		if minor, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0
		}
	}
	return major, minor
}

func osVersion() (string, error) {
	if runtime.GOOS == "linux" {
		return host.KernelVersion()
	}
	_, _, version, err := host.PlatformInformation()
	if err != nil {
		return "", err
	}
	if i := strings.Index(version, " "); i >= 0 {
		version = version[:i]
	}
	return version, nil
}

func osPlatform(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "Mac OS X"
	case "linux":
		return "Linux"
	default:
		return goos
	}
}

func osFamily(goos string) string {
	if goos == "windows" {
		return "Windows NT"
	}
	return osPlatform(goos)
}
