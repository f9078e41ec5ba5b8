package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/logger"
	"github.com/oshokin/clip2gif-packager/internal/platform"
	"github.com/oshokin/clip2gif-packager/internal/service/acquire"
)

// ErrCompiledOutputMissing means the packaging step produced no application
// executable at any of the known locations. Assembly cannot proceed.
var ErrCompiledOutputMissing = errors.New("compiled application executable not found")

const (
	executableMode os.FileMode = 0o755
	manifestMode   os.FileMode = 0o644
)

// infoPlistTemplate is the bundle metadata for macOS packages.
// Paths and keys follow what Finder and Gatekeeper expect from a
// minimal unsigned application bundle.
const infoPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleDevelopmentRegion</key>
	<string>en</string>
	<key>CFBundleDisplayName</key>
	<string>{{.Name}}</string>
	<key>CFBundleName</key>
	<string>{{.Name}}</string>
	<key>CFBundleExecutable</key>
	<string>{{.Executable}}</string>
	<key>CFBundleIdentifier</key>
	<string>{{.BundleID}}</string>
	<key>CFBundleShortVersionString</key>
	<string>{{.Version}}</string>
	<key>CFBundleVersion</key>
	<string>{{.Version}}</string>
	<key>CFBundlePackageType</key>
	<string>APPL</string>
	<key>CFBundleInfoDictionaryVersion</key>
	<string>6.0</string>
	<key>LSMinimumSystemVersion</key>
	<string>{{.MinOSVersion}}</string>
	<key>NSHighResolutionCapable</key>
	<true/>
</dict>
</plist>
`

var plistTemplate = template.Must(template.New("info-plist").Parse(infoPlistTemplate))

// windowsManifest mirrors the macOS Info.plist identity fields for the
// directory-shaped Windows distribution.
type windowsManifest struct {
	Name       string `yaml:"name"`
	Executable string `yaml:"executable"`
	Identifier string `yaml:"identifier"`
	Version    string `yaml:"version"`
}

// Assembler builds the distributable package directory from the compiled
// application and the acquired helper binaries.
type Assembler struct {
	cfg    *config.Config
	target *platform.Target
	layout *Layout
}

// NewAssembler returns an assembler for the given configuration and target.
func NewAssembler(cfg *config.Config, target *platform.Target) *Assembler {
	return &Assembler{
		cfg:    cfg,
		target: target,
		layout: NewLayout(cfg.OutputDir, cfg.App, target),
	}
}

// Layout exposes the computed package layout.
func (a *Assembler) Layout() *Layout {
	return a.layout
}

// Assemble builds the package directory from scratch. Any previous package
// at the same path is removed first so repeated runs converge on the same
// result. Helper binaries that were not resolved are skipped; a missing
// compiled executable is fatal.
func (a *Assembler) Assemble(ctx context.Context, acquired []*acquire.Result) (*Layout, error) {
	compiled, err := a.locateCompiled()
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Assembling package",
		"root", a.layout.Root,
		"executable", compiled)

	if err = os.RemoveAll(a.layout.Root); err != nil {
		return nil, fmt.Errorf("failed to remove previous package: %w", err)
	}

	for _, dir := range []string{
		filepath.Dir(a.layout.ExecutablePath),
		a.layout.ResourcesDir,
		a.layout.HelperDir,
	} {
		if err = os.MkdirAll(dir, executableMode); err != nil {
			return nil, fmt.Errorf("failed to create package directory %q: %w", dir, err)
		}
	}

	if err = copyFile(compiled, a.layout.ExecutablePath, executableMode); err != nil {
		return nil, fmt.Errorf("failed to place application executable: %w", err)
	}

	if err = a.placeHelpers(ctx, acquired); err != nil {
		return nil, err
	}

	if err = a.writeManifest(); err != nil {
		return nil, err
	}

	return a.layout, nil
}

// locateCompiled finds the packaging step's output executable, checking the
// configured path first and then the conventional fallback directories.
func (a *Assembler) locateCompiled() (string, error) {
	name := a.cfg.App.Executable
	if a.target.OS == config.OSWindows {
		name += ".exe"
	}

	candidates := make([]string, 0, len(a.cfg.Build.FallbackDirs)+1)
	if a.cfg.Build.OutputPath != "" {
		candidates = append(candidates, a.cfg.Build.OutputPath)
	}

	for _, dir := range a.cfg.Build.FallbackDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}

	for _, candidate := range candidates {
		info, statErr := os.Stat(candidate)
		if statErr != nil || info.IsDir() {
			continue
		}

		return candidate, nil
	}

	return "", fmt.Errorf("%w: checked %v", ErrCompiledOutputMissing, candidates)
}

// placeHelpers copies every resolved helper binary into the helper
// directory with executable permissions.
func (a *Assembler) placeHelpers(ctx context.Context, acquired []*acquire.Result) error {
	for _, result := range acquired {
		if !result.Resolved() {
			// Acquisition already surfaced the warning.
			logger.DebugKV(ctx, "Helper binary is not bundled",
				"binary", result.Descriptor.Name)

			continue
		}

		dest := filepath.Join(a.layout.HelperDir, result.Descriptor.FileName)
		if err := copyFile(result.Path, dest, executableMode); err != nil {
			return fmt.Errorf("failed to bundle %s: %w", result.Descriptor.Name, err)
		}

		logger.InfoKV(ctx, "Bundled helper binary",
			"binary", result.Descriptor.Name,
			"path", dest)
	}

	return nil
}

// writeManifest emits the package identity manifest for the target OS.
func (a *Assembler) writeManifest() error {
	if a.target.OS == config.OSMacos {
		return a.writeInfoPlist()
	}

	return a.writeWindowsManifest()
}

func (a *Assembler) writeInfoPlist() error {
	file, err := os.OpenFile(a.layout.ManifestPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, manifestMode)
	if err != nil {
		return fmt.Errorf("failed to create Info.plist: %w", err)
	}
	defer file.Close()

	data := struct {
		Name         string
		Executable   string
		BundleID     string
		Version      string
		MinOSVersion string
	}{
		Name:         a.cfg.App.Name,
		Executable:   a.cfg.App.Executable,
		BundleID:     a.cfg.App.BundleID,
		Version:      a.cfg.App.Version,
		MinOSVersion: a.cfg.Build.MinMacOSVersion,
	}

	if err = plistTemplate.Execute(file, data); err != nil {
		return fmt.Errorf("failed to render Info.plist: %w", err)
	}

	return nil
}

func (a *Assembler) writeWindowsManifest() error {
	manifest := windowsManifest{
		Name:       a.cfg.App.Name,
		Executable: a.cfg.App.Executable + ".exe",
		Identifier: a.cfg.App.BundleID,
		Version:    a.cfg.App.Version,
	}

	raw, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal distribution manifest: %w", err)
	}

	if err = os.WriteFile(a.layout.ManifestPath, raw, manifestMode); err != nil {
		return fmt.Errorf("failed to write distribution manifest: %w", err)
	}

	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()

		return err
	}

	return out.Close()
}
