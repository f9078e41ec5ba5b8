package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// App holds the identity metadata written into the package manifest.
type App struct {
	// Name is the display name of the application, e.g. "Clip2Gif".
	Name string `yaml:"name"`
	// Executable is the base name of the compiled entry point (no extension).
	Executable string `yaml:"executable"`
	// BundleID is the reverse-DNS identifier used in the macOS bundle manifest.
	BundleID string `yaml:"bundle_id"`
	// Version is the marketing version string of the release being packaged.
	Version string `yaml:"version"`
}

// Download controls remote acquisition of helper binaries.
type Download struct {
	// Enabled turns remote acquisition on. Off by default: operators usually pre-stage.
	Enabled bool `yaml:"enabled"`
	// Timeout bounds a single URL attempt.
	Timeout time.Duration `yaml:"timeout"`
	// Retries is the number of additional attempts per URL.
	Retries int `yaml:"retries"`
	// Sources maps target OS -> binary name -> ordered candidate archive URLs.
	Sources map[string]map[string][]string `yaml:"sources"`
}

// Binaries describes the helper executables the application needs at runtime.
type Binaries struct {
	// PrestagedDir is the root of the per-OS pre-staged binary tree.
	PrestagedDir string `yaml:"prestaged_dir"`
	// Names lists required helper executables by base name.
	Names []string `yaml:"names"`
	// Download holds remote acquisition settings.
	Download Download `yaml:"download"`
}

// Build describes how the compiled application is produced and found.
type Build struct {
	// Command is the packaging build step run by the pipeline.
	Command []string `yaml:"command"`
	// OutputPath is where the build step is expected to leave the executable.
	OutputPath string `yaml:"output_path"`
	// FallbackDirs are alternate output directories searched when OutputPath is absent.
	FallbackDirs []string `yaml:"fallback_dirs"`
	// ToolchainInit creates the arch-pinned toolchain instance for cross builds.
	ToolchainInit []string `yaml:"toolchain_init"`
	// MinMacOSVersion is exported as the deployment floor for cross builds.
	MinMacOSVersion string `yaml:"min_macos_version"`
}

// Config holds all settings consumed by the packaging pipeline.
type Config struct {
	App App `yaml:"app"`
	// TargetOS is the OS being packaged for: "macos" or "windows".
	TargetOS string `yaml:"target_os"`
	// TargetArch optionally pins the CPU architecture. Empty means the host's.
	TargetArch string   `yaml:"target_arch"`
	Binaries   Binaries `yaml:"binaries"`
	Build      Build    `yaml:"build"`
	// OutputDir is where distributable artifacts are written.
	OutputDir string `yaml:"output_dir"`
}

const (
	// DefaultConfigFilename is the default filename for pipeline settings.
	DefaultConfigFilename = "clip2gif-packager.yaml"

	// DefaultPrestagedDir is the root of the pre-staged helper binary tree.
	DefaultPrestagedDir = "ffmpeg_binaries"

	// DefaultOutputDir is where distributables land.
	DefaultOutputDir = "release"

	// DefaultDownloadTimeout bounds a single download attempt.
	// The source material leaves this open; the zerb downloader uses the same value.
	DefaultDownloadTimeout = 5 * time.Minute

	// DefaultDownloadRetries is the number of retries per URL.
	DefaultDownloadRetries = 3

	// DefaultMinMacOSVersion keeps cross-built artifacts runnable on older systems.
	DefaultMinMacOSVersion = "11.0"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// OSMacos and OSWindows are the supported target OS names. They double as
	// subdirectory names in the pre-staged binary tree.
	OSMacos   = "macos"
	OSWindows = "windows"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errAppIdentityRequired is returned when identity metadata is incomplete.
	errAppIdentityRequired = errors.New("app name, executable, bundle_id and version must be provided")
	// errUnsupportedTargetOS is returned for OS names outside the supported set.
	errUnsupportedTargetOS = errors.New("target OS must be one of: macos, windows")
)

// DefaultBinaryNames are the helper executables the GUI looks up at runtime.
func DefaultBinaryNames() []string {
	return []string{"ffmpeg", "ffprobe"}
}

// DefaultSources returns the built-in ordered download locations per OS and binary.
// Windows builds ship ffmpeg and ffprobe in a single archive, so both names
// point at the same URLs and extraction picks the right file.
func DefaultSources() map[string]map[string][]string {
	windowsArchives := []string{
		"https://www.gyan.dev/ffmpeg/builds/ffmpeg-release-essentials.zip",
		"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-win64-gpl.zip",
	}

	return map[string]map[string][]string{
		OSMacos: {
			"ffmpeg":  {"https://evermeet.cx/ffmpeg/getrelease/ffmpeg/zip", "https://evermeet.cx/ffmpeg/get/zip"},
			"ffprobe": {"https://evermeet.cx/ffmpeg/getrelease/ffprobe/zip", "https://evermeet.cx/ffmpeg/get/ffprobe/zip"},
		},
		OSWindows: {
			"ffmpeg":  windowsArchives,
			"ffprobe": windowsArchives,
		},
	}
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults for optional ones.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.App.Name == "" || cfg.App.Executable == "" || cfg.App.BundleID == "" || cfg.App.Version == "" {
		return errAppIdentityRequired
	}

	switch cfg.TargetOS {
	case OSMacos, OSWindows:
	default:
		return fmt.Errorf("%w: %q", errUnsupportedTargetOS, cfg.TargetOS)
	}

	if cfg.Binaries.PrestagedDir == "" {
		cfg.Binaries.PrestagedDir = DefaultPrestagedDir
	}

	if len(cfg.Binaries.Names) == 0 {
		cfg.Binaries.Names = DefaultBinaryNames()
	}

	if cfg.Binaries.Download.Timeout <= 0 {
		cfg.Binaries.Download.Timeout = DefaultDownloadTimeout
	}

	if cfg.Binaries.Download.Retries <= 0 {
		cfg.Binaries.Download.Retries = DefaultDownloadRetries
	}

	if cfg.Binaries.Download.Sources == nil {
		cfg.Binaries.Download.Sources = DefaultSources()
	}

	if err := validateSources(cfg.Binaries.Download.Sources); err != nil {
		return err
	}

	if cfg.Build.OutputPath == "" {
		cfg.Build.OutputPath = filepath.Join("dist", cfg.App.Executable)
	}

	if len(cfg.Build.FallbackDirs) == 0 {
		cfg.Build.FallbackDirs = []string{"build", filepath.Join("dist", cfg.App.Name)}
	}

	if cfg.Build.MinMacOSVersion == "" {
		cfg.Build.MinMacOSVersion = DefaultMinMacOSVersion
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	return nil
}

// validateSources rejects malformed download URLs early,
// before the acquisition stage starts working through the list.
func validateSources(sources map[string]map[string][]string) error {
	for osName, byBinary := range sources {
		for binaryName, urls := range byBinary {
			for _, raw := range urls {
				if _, err := url.ParseRequestURI(raw); err != nil {
					return fmt.Errorf("invalid download URL for %s/%s: %w", osName, binaryName, err)
				}
			}
		}
	}

	return nil
}
