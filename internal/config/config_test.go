package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: App{
			Name:       "Clip2Gif",
			Executable: "clip2gif",
			BundleID:   "com.oshokin.clip2gif",
			Version:    "1.2.0",
		},
		TargetOS: OSMacos,
	}
}

// TestValidate checks required fields, OS whitelist and default filling.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing identity.
	err := Validate(new(Config))
	require.Error(t, err)

	// Unsupported OS.
	cfg := validConfig()
	cfg.TargetOS = "linux"
	require.Error(t, Validate(cfg))

	// Valid config gets defaults.
	cfg = validConfig()
	require.NoError(t, Validate(cfg))
	require.Equal(t, DefaultPrestagedDir, cfg.Binaries.PrestagedDir)
	require.Equal(t, DefaultBinaryNames(), cfg.Binaries.Names)
	require.Equal(t, DefaultDownloadTimeout, cfg.Binaries.Download.Timeout)
	require.Equal(t, DefaultDownloadRetries, cfg.Binaries.Download.Retries)
	require.Equal(t, filepath.Join("dist", "clip2gif"), cfg.Build.OutputPath)
	require.Equal(t, DefaultMinMacOSVersion, cfg.Build.MinMacOSVersion)
	require.Equal(t, DefaultOutputDir, cfg.OutputDir)
	require.NotEmpty(t, cfg.Binaries.Download.Sources[OSMacos]["ffmpeg"])
}

// TestValidate_BadSourceURL ensures malformed download URLs are rejected early.
func TestValidate_BadSourceURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Binaries.Download.Sources = map[string]map[string][]string{
		OSMacos: {"ffmpeg": {"not a url"}},
	}

	require.Error(t, Validate(cfg))
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := validConfig()
	cfg.TargetArch = "x86_64"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.App, loaded.App)
	require.Equal(t, cfg.TargetOS, loaded.TargetOS)
	require.Equal(t, cfg.TargetArch, loaded.TargetArch)

	// File exists with restricted permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}
