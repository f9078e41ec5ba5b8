package distribute

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/inspect"
	"github.com/oshokin/clip2gif-packager/internal/logger"
	"github.com/oshokin/clip2gif-packager/internal/platform"
	"github.com/oshokin/clip2gif-packager/internal/service/bundle"
)

// ArtifactKind tells the caller what shape the final artifact has.
type ArtifactKind string

const (
	// ArtifactDiskImage is a compressed .dmg wrapping the .app bundle.
	ArtifactDiskImage ArtifactKind = "disk-image"
	// ArtifactDirectory is the bare package directory, produced for
	// Windows targets and as the macOS fallback when hdiutil is missing.
	ArtifactDirectory ArtifactKind = "directory"
)

const diskImageTool = "hdiutil"

// Artifact is the final deliverable of a packaging run.
type Artifact struct {
	Kind ArtifactKind
	Path string
	// Warnings collects non-fatal issues hit while producing the artifact.
	Warnings []string
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Packager turns an assembled package directory into the final artifact
// and reports the architectures of everything shipped inside it.
type Packager struct {
	cfg      *config.Config
	target   *platform.Target
	run      commandRunner
	lookPath func(file string) (string, error)
}

// NewPackager returns a packager for the given configuration and target.
func NewPackager(cfg *config.Config, target *platform.Target) *Packager {
	return &Packager{
		cfg:    cfg,
		target: target,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		lookPath: exec.LookPath,
	}
}

// Package produces the final artifact from an assembled layout. macOS
// packages are wrapped into a compressed disk image; if the imaging tool
// is unavailable the bare bundle is delivered with a warning instead of
// failing the run. Windows packages ship as the directory itself.
func (p *Packager) Package(ctx context.Context, layout *bundle.Layout) (*Artifact, error) {
	warnings := p.reportArchitectures(ctx, layout)

	if p.target.OS != config.OSMacos {
		logger.InfoKV(ctx, "Package ready", "path", layout.Root, "kind", ArtifactDirectory)

		return &Artifact{Kind: ArtifactDirectory, Path: layout.Root, Warnings: warnings}, nil
	}

	return p.wrapDiskImage(ctx, layout, warnings)
}

func (p *Packager) wrapDiskImage(
	ctx context.Context,
	layout *bundle.Layout,
	warnings []string,
) (*Artifact, error) {
	imagePath := filepath.Join(p.cfg.OutputDir, p.imageName())

	// Stale images from previous runs would otherwise survive a rerun
	// that fails partway.
	if err := os.Remove(imagePath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove previous disk image: %w", err)
	}

	if _, err := p.lookPath(diskImageTool); err != nil {
		warning := fmt.Sprintf("%s is not available, delivering the bare bundle", diskImageTool)
		logger.WarnKV(ctx, "Skipping disk image creation", "reason", warning)

		return &Artifact{
			Kind:     ArtifactDirectory,
			Path:     layout.Root,
			Warnings: append(warnings, warning),
		}, nil
	}

	logger.InfoKV(ctx, "Creating disk image", "path", imagePath)

	output, err := p.run(ctx, diskImageTool,
		"create",
		"-volname", p.cfg.App.Name,
		"-srcfolder", layout.Root,
		"-ov",
		"-format", "UDZO",
		imagePath)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", diskImageTool, err, output)
	}

	logger.InfoKV(ctx, "Package ready", "path", imagePath, "kind", ArtifactDiskImage)

	return &Artifact{Kind: ArtifactDiskImage, Path: imagePath, Warnings: warnings}, nil
}

func (p *Packager) imageName() string {
	return fmt.Sprintf("%s-%s-%s.dmg", p.cfg.App.Executable, p.cfg.App.Version, p.target.Arch)
}

// reportArchitectures logs what architecture each shipped executable
// reports and returns warnings for confirmed mismatches.
func (p *Packager) reportArchitectures(ctx context.Context, layout *bundle.Layout) []string {
	var warnings []string

	checked := map[string]string{
		filepath.Base(layout.ExecutablePath): layout.ExecutablePath,
	}

	entries, err := os.ReadDir(layout.HelperDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				checked[entry.Name()] = filepath.Join(layout.HelperDir, entry.Name())
			}
		}
	}

	for name, path := range checked {
		description := inspect.Describe(path)
		logger.InfoKV(ctx, "Shipped binary architecture",
			"binary", name,
			"arch", description)

		if inspect.Verify(path, p.target.Arch) == inspect.VerdictMismatch {
			warnings = append(warnings, fmt.Sprintf(
				"%s reports %s, expected %s", name, description, p.target.Arch))
		}
	}

	return warnings
}
