package distribute

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/platform"
	"github.com/oshokin/clip2gif-packager/internal/service/bundle"
)

// peBinary builds the smallest byte sequence debug/pe accepts as a PE
// image for the given machine type.
func peBinary(machine uint16) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, machine)
	buf.Write(make([]byte, 96))

	return buf.Bytes()
}

func testConfig(osName, arch string) (*config.Config, *platform.Target) {
	cfg := &config.Config{
		App: config.App{
			Name:       "Clip2Gif",
			Executable: "clip2gif",
			BundleID:   "com.oshokin.clip2gif",
			Version:    "1.2.3",
		},
		TargetOS: osName,
	}

	target := &platform.Target{
		OS:       osName,
		Arch:     arch,
		HostOS:   "linux",
		HostArch: platform.ArchX8664,
	}

	return cfg, target
}

// testLayout materializes a package directory shaped like the assembler's
// output, with placeholder binaries inside.
func testLayout(t *testing.T, cfg *config.Config, target *platform.Target, helpers map[string][]byte) *bundle.Layout {
	t.Helper()

	cfg.OutputDir = t.TempDir()
	layout := bundle.NewLayout(cfg.OutputDir, cfg.App, target)

	require.NoError(t, os.MkdirAll(filepath.Dir(layout.ExecutablePath), 0o755))
	require.NoError(t, os.MkdirAll(layout.HelperDir, 0o755))
	require.NoError(t, os.WriteFile(layout.ExecutablePath, []byte("app"), 0o755))

	for name, contents := range helpers {
		require.NoError(t, os.WriteFile(filepath.Join(layout.HelperDir, name), contents, 0o755))
	}

	return layout
}

func TestPackage_WindowsDirectoryArtifact(t *testing.T) {
	t.Parallel()

	cfg, target := testConfig(config.OSWindows, platform.ArchX8664)
	layout := testLayout(t, cfg, target, map[string][]byte{"ffmpeg.exe": peBinary(0x8664)})

	packager := NewPackager(cfg, target)
	packager.run = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		t.Fatalf("unexpected command %q for a directory artifact", name)

		return nil, nil
	}

	artifact, err := packager.Package(context.Background(), layout)
	require.NoError(t, err)
	require.Equal(t, ArtifactDirectory, artifact.Kind)
	require.Equal(t, layout.Root, artifact.Path)
	require.Empty(t, artifact.Warnings)
}

func TestPackage_MacOSDiskImage(t *testing.T) {
	t.Parallel()

	cfg, target := testConfig(config.OSMacos, platform.ArchARM64)
	layout := testLayout(t, cfg, target, nil)

	// A leftover image from an earlier run must not survive.
	stale := filepath.Join(cfg.OutputDir, "clip2gif-1.2.3-arm64.dmg")
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	var gotArgs []string

	packager := NewPackager(cfg, target)
	packager.lookPath = func(string) (string, error) { return "/usr/bin/hdiutil", nil }
	packager.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		require.Equal(t, "hdiutil", name)
		gotArgs = args

		return nil, nil
	}

	artifact, err := packager.Package(context.Background(), layout)
	require.NoError(t, err)
	require.Equal(t, ArtifactDiskImage, artifact.Kind)
	require.Equal(t, stale, artifact.Path)
	require.NoFileExists(t, stale, "previous image must be removed before creation")

	require.Equal(t, []string{
		"create",
		"-volname", "Clip2Gif",
		"-srcfolder", layout.Root,
		"-ov",
		"-format", "UDZO",
		stale,
	}, gotArgs)
}

func TestPackage_MissingImagingToolFallsBack(t *testing.T) {
	t.Parallel()

	cfg, target := testConfig(config.OSMacos, platform.ArchARM64)
	layout := testLayout(t, cfg, target, nil)

	packager := NewPackager(cfg, target)
	packager.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	packager.run = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		t.Fatalf("unexpected command %q without an imaging tool", name)

		return nil, nil
	}

	artifact, err := packager.Package(context.Background(), layout)
	require.NoError(t, err)
	require.Equal(t, ArtifactDirectory, artifact.Kind)
	require.Equal(t, layout.Root, artifact.Path)
	require.Len(t, artifact.Warnings, 1)
	require.Contains(t, artifact.Warnings[0], "hdiutil")
}

func TestPackage_ImagingFailureIsFatal(t *testing.T) {
	t.Parallel()

	cfg, target := testConfig(config.OSMacos, platform.ArchARM64)
	layout := testLayout(t, cfg, target, nil)

	packager := NewPackager(cfg, target)
	packager.lookPath = func(string) (string, error) { return "/usr/bin/hdiutil", nil }
	packager.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("hdiutil: create failed - Resource busy"), errors.New("exit status 1")
	}

	_, err := packager.Package(context.Background(), layout)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Resource busy")
}

func TestPackage_ArchMismatchWarns(t *testing.T) {
	t.Parallel()

	// An x86_64 helper shipped in an arm64 Windows-style package must be
	// flagged, while unparseable binaries stay warning-free.
	cfg, target := testConfig(config.OSWindows, platform.ArchARM64)
	layout := testLayout(t, cfg, target, map[string][]byte{
		"ffmpeg.exe":  peBinary(0x8664),
		"ffprobe.exe": []byte("not an executable"),
	})

	artifact, err := NewPackager(cfg, target).Package(context.Background(), layout)
	require.NoError(t, err)
	require.Len(t, artifact.Warnings, 1)
	require.Contains(t, artifact.Warnings[0], "ffmpeg.exe")
}
