package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo is a diagnostic snapshot of the build host,
// logged at pipeline start so build reports can be traced to a machine.
type HostInfo struct {
	OS       string
	Arch     string
	Platform string // e.g. "darwin", "ubuntu"
	Version  string // OS version, e.g. "14.5", "22.04"
}

// Description renders the snapshot for log output.
func (h *HostInfo) Description() string {
	if h.Platform == "" {
		return fmt.Sprintf("%s/%s", h.OS, h.Arch)
	}

	return fmt.Sprintf("%s/%s (%s %s)", h.OS, h.Arch, h.Platform, h.Version)
}

// DetectHost collects host information. Platform details come from gopsutil;
// when that fails the OS and architecture from the runtime are still returned,
// since nothing downstream depends on the extra fields.
func DetectHost(ctx context.Context) *HostInfo {
	info := &HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	platformName, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		return info
	}

	info.Platform = platformName
	info.Version = version

	return info
}
