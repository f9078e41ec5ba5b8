package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/clip2gif-packager/internal/config"
)

// TestNormalizeArch covers toolchain and uname spellings plus rejection of junk.
func TestNormalizeArch(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"amd64":   ArchX8664,
		"x86_64":  ArchX8664,
		"x64":     ArchX8664,
		"arm64":   ArchARM64,
		"aarch64": ArchARM64,
	}
	for in, want := range cases {
		got, err := NormalizeArch(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := NormalizeArch("mips")
	require.Error(t, err)
}

// TestResolve_DefaultsToHost verifies that an empty request targets the host architecture
// and never requires emulation.
func TestResolve_DefaultsToHost(t *testing.T) {
	t.Parallel()

	target, err := Resolve(config.OSMacos, "darwin", "arm64", "")
	require.NoError(t, err)
	require.Equal(t, ArchARM64, target.Arch)
	require.False(t, target.NeedsEmulation())
}

// TestResolve_CrossViaRosetta accepts the one supported cross pair.
func TestResolve_CrossViaRosetta(t *testing.T) {
	t.Parallel()

	target, err := Resolve(config.OSMacos, "darwin", "arm64", "x86_64")
	require.NoError(t, err)
	require.Equal(t, ArchX8664, target.Arch)
	require.Equal(t, ArchARM64, target.HostArch)
	require.True(t, target.NeedsEmulation())
}

// TestResolve_NoEmulationCapability rejects cross targets the host cannot run.
func TestResolve_NoEmulationCapability(t *testing.T) {
	t.Parallel()

	// x86_64 mac host cannot run arm64 build steps.
	_, err := Resolve(config.OSMacos, "darwin", "amd64", "arm64")
	require.Error(t, err)

	// Windows has no emulation path at all.
	_, err = Resolve(config.OSWindows, "windows", "amd64", "arm64")
	require.Error(t, err)
}

// TestResolve_ArchOSMatrix enforces the fixed per-OS architecture sets.
func TestResolve_ArchOSMatrix(t *testing.T) {
	t.Parallel()

	_, err := Resolve(config.OSWindows, "windows", "amd64", "x86_64")
	require.NoError(t, err)

	_, err = Resolve("linux", "linux", "amd64", "")
	require.Error(t, err)
}

// TestDetectHost never fails, even when platform details are unavailable.
func TestDetectHost(t *testing.T) {
	t.Parallel()

	info := DetectHost(context.Background())
	require.NotEmpty(t, info.OS)
	require.NotEmpty(t, info.Arch)
}
