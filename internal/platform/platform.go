package platform

import (
	"errors"
	"fmt"
	"runtime"
	"slices"

	"github.com/oshokin/clip2gif-packager/internal/config"
)

// Canonical architecture names used throughout the pipeline.
const (
	ArchX8664 = "x86_64"
	ArchARM64 = "arm64"
)

// Target is the resolved packaging target: where the artifact will run,
// and what the build host looks like.
type Target struct {
	// OS is the target operating system ("macos" or "windows").
	OS string
	// Arch is the CPU architecture the distributable is produced for.
	Arch string
	// HostOS and HostArch describe the build host.
	HostOS   string
	HostArch string
}

// NeedsEmulation reports whether the packaging build step has to run under
// an emulation layer because target and host architectures differ.
func (t *Target) NeedsEmulation() bool {
	return t.Arch != t.HostArch
}

var (
	errUnknownArch   = errors.New("unknown architecture")
	errArchForOS     = errors.New("architecture not supported for target OS")
	errNoEmulation   = errors.New("no emulation capability for this host/target pair")
	errUnsupportedOS = errors.New("unsupported target OS")
)

// NormalizeArch maps the common spellings of CPU architectures onto the
// canonical names. Vendors disagree on naming, so both toolchain style
// (amd64, arm64) and uname style (x86_64, aarch64) are accepted.
func NormalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64", "x64":
		return ArchX8664, nil
	case "arm64", "aarch64":
		return ArchARM64, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownArch, arch)
	}
}

// SupportedArchs returns the fixed architecture set per target OS.
func SupportedArchs(osName string) ([]string, error) {
	switch osName {
	case config.OSMacos:
		return []string{ArchARM64, ArchX8664}, nil
	case config.OSWindows:
		return []string{ArchX8664}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedOS, osName)
	}
}

// Resolve decides the packaging target for the requested OS and architecture.
// An empty requestedArch defaults to the host architecture. A cross target is
// only accepted when the host can emulate it: macOS arm64 hosts can run
// x86_64 build steps under Rosetta 2, nothing else can.
func Resolve(osName, hostOS, hostArch, requestedArch string) (*Target, error) {
	host, err := NormalizeArch(hostArch)
	if err != nil {
		return nil, fmt.Errorf("host architecture: %w", err)
	}

	supported, err := SupportedArchs(osName)
	if err != nil {
		return nil, err
	}

	target := host
	if requestedArch != "" {
		target, err = NormalizeArch(requestedArch)
		if err != nil {
			return nil, fmt.Errorf("requested architecture: %w", err)
		}
	}

	if !slices.Contains(supported, target) {
		return nil, fmt.Errorf("%w: %s on %s", errArchForOS, target, osName)
	}

	if target != host && !canEmulate(osName, hostOS, host, target) {
		return nil, fmt.Errorf("%w: host %s/%s, target %s", errNoEmulation, hostOS, host, target)
	}

	return &Target{
		OS:       osName,
		Arch:     target,
		HostOS:   hostOS,
		HostArch: host,
	}, nil
}

// ResolveHost is Resolve with the current process's host parameters filled in.
func ResolveHost(osName, requestedArch string) (*Target, error) {
	return Resolve(osName, runtime.GOOS, runtime.GOARCH, requestedArch)
}

// canEmulate reports whether the host can execute target-arch build steps.
// Rosetta 2 on Apple Silicon is the only supported emulation layer.
func canEmulate(osName, hostOS, hostArch, targetArch string) bool {
	return osName == config.OSMacos &&
		hostOS == "darwin" &&
		hostArch == ArchARM64 &&
		targetArch == ArchX8664
}
