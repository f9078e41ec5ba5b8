package bundle

import (
	"path/filepath"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/platform"
)

// WindowsManifestFilename is the identity manifest written into the
// Windows distribution directory.
const WindowsManifestFilename = "clip2gif-dist.yaml"

// Layout is the fixed on-disk shape of an assembled package. The same
// relative layout is produced no matter which source supplied each binary,
// because the GUI's runtime lookup walks these exact paths.
type Layout struct {
	// Root is the package directory ("<Name>.app" or the dist folder).
	Root string
	// ExecutablePath is where the compiled application lands.
	ExecutablePath string
	// ResourcesDir holds non-code assets. On Windows it is the root itself.
	ResourcesDir string
	// HelperDir is where ffmpeg and ffprobe are bundled.
	HelperDir string
	// ManifestPath is the identity manifest (Info.plist or YAML).
	ManifestPath string
}

// NewLayout computes the package layout for the target OS.
func NewLayout(outputDir string, app config.App, target *platform.Target) *Layout {
	if target.OS == config.OSMacos {
		root := filepath.Join(outputDir, app.Name+".app")
		contents := filepath.Join(root, "Contents")
		resources := filepath.Join(contents, "Resources")

		return &Layout{
			Root:           root,
			ExecutablePath: filepath.Join(contents, "MacOS", app.Executable),
			ResourcesDir:   resources,
			HelperDir:      filepath.Join(resources, "ffmpeg_binaries", config.OSMacos),
			ManifestPath:   filepath.Join(contents, "Info.plist"),
		}
	}

	root := filepath.Join(outputDir, app.Executable)

	return &Layout{
		Root:           root,
		ExecutablePath: filepath.Join(root, app.Executable+".exe"),
		ResourcesDir:   root,
		HelperDir:      filepath.Join(root, "ffmpeg_binaries", config.OSWindows),
		ManifestPath:   filepath.Join(root, WindowsManifestFilename),
	}
}
