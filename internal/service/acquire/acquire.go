package acquire

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
)

// SourceKind identifies one link of the acquisition fallback chain.
type SourceKind string

const (
	// SourcePrestaged is an operator-populated per-OS directory.
	SourcePrestaged SourceKind = "pre-staged"
	// SourceSystemPath is the host's executable search path.
	SourceSystemPath SourceKind = "system-path"
	// SourceRemoteArchive is a downloadable archive containing the binary.
	SourceRemoteArchive SourceKind = "remote-archive"
)

// defaultBinaryMode is applied to every installed helper binary.
const defaultBinaryMode os.FileMode = 0o755

// Source is one candidate location for a helper binary. Sources are
// evaluated strictly in order; the first success wins.
type Source struct {
	Kind SourceKind
	// Location is a directory for pre-staged sources, empty for the system
	// search path, and a URL for remote archives.
	Location string
}

// Descriptor describes one helper binary to acquire for a target.
type Descriptor struct {
	// Name is the base name, e.g. "ffmpeg".
	Name string
	// FileName is the platform file name, e.g. "ffmpeg.exe" on Windows.
	FileName string
	// ExpectedArch is the architecture the resolved binary should report.
	ExpectedArch string
	// Sources is the ordered fallback chain.
	Sources []Source
}

// Result records the outcome of acquiring one binary.
type Result struct {
	Descriptor *Descriptor
	// Path is the resolved local file, empty when every source failed.
	Path string
	// Source is the kind that produced Path.
	Source SourceKind
	// Arch is the tri-state architecture verification verdict.
	Arch inspect.Verdict
	// Warnings collects non-fatal diagnostics for the pipeline summary.
	Warnings []string
}

// Resolved reports whether the binary was obtained from any source.
func (r *Result) Resolved() bool {
	return r.Path != ""
}

// Manager acquires the helper binaries required by the packaged application.
type Manager struct {
	target          *platform.Target
	names           []string
	prestagedRoot   string
	sources         map[string][]string
	downloader      *Downloader
	downloadEnabled bool
	workDir         string
}

// NewManager builds an acquisition manager for the resolved target.
func NewManager(cfg *config.Config, target *platform.Target) *Manager {
	download := cfg.Binaries.Download

	return &Manager{
		target:          target,
		names:           cfg.Binaries.Names,
		prestagedRoot:   cfg.Binaries.PrestagedDir,
		sources:         download.Sources[target.OS],
		downloader:      NewDownloader(download.Timeout, download.Retries),
		downloadEnabled: download.Enabled,
	}
}

// PrestagedDir returns the per-OS directory binaries are staged into.
func (m *Manager) PrestagedDir() string {
	return filepath.Join(m.prestagedRoot, m.target.OS)
}

// Descriptors builds the per-binary fallback chains for the target.
func (m *Manager) Descriptors() []*Descriptor {
	descriptors := make([]*Descriptor, 0, len(m.names))

	for _, name := range m.names {
		fileName := name
		if m.target.OS == config.OSWindows {
			fileName += ".exe"
		}

		sources := []Source{
			{Kind: SourcePrestaged, Location: m.PrestagedDir()},
			{Kind: SourceSystemPath},
		}

		if m.downloadEnabled {
			for _, url := range m.sources[name] {
				sources = append(sources, Source{Kind: SourceRemoteArchive, Location: url})
			}
		}

		descriptors = append(descriptors, &Descriptor{
			Name:         name,
			FileName:     fileName,
			ExpectedArch: m.target.Arch,
			Sources:      sources,
		})
	}

	return descriptors
}

// AcquireAll resolves every required binary and writes the acquisition report
// next to the staged files. Unresolved binaries are surfaced as warnings on
// their results, never as errors.
func (m *Manager) AcquireAll(ctx context.Context) ([]*Result, error) {
	ctx = logger.WithName(ctx, "acquire")

	results := make([]*Result, 0, len(m.names))
	for _, descriptor := range m.Descriptors() {
		results = append(results, m.Acquire(ctx, descriptor))
	}

	if err := m.writeReport(results); err != nil {
		// The report is an audit aid, not a build input.
		logger.WarnKV(ctx, "Unable to write acquisition report", "error", err)
	}

	m.cleanup()

	return results, nil
}

// Acquire works through the descriptor's source chain in order.
func (m *Manager) Acquire(ctx context.Context, descriptor *Descriptor) *Result {
	result := &Result{Descriptor: descriptor, Arch: inspect.VerdictUnknown}

	for _, source := range descriptor.Sources {
		path, err := m.trySource(ctx, descriptor, source)
		if err != nil {
			logger.DebugKV(ctx, "Acquisition source failed",
				"binary", descriptor.Name, "source", string(source.Kind), "location", source.Location, "error", err)

			continue
		}

		if path == "" {
			continue
		}

		result.Path = path
		result.Source = source.Kind

		logger.InfoKV(ctx, "Resolved helper binary",
			"binary", descriptor.Name, "source", string(source.Kind), "path", path)

		break
	}

	if !result.Resolved() {
		warning := fmt.Sprintf(
			"%s could not be acquired from any source; the packaged app will expect it on the target machine",
			descriptor.Name)
		result.Warnings = append(result.Warnings, warning)
		logger.Warn(ctx, warning)

		return result
	}

	m.verifyArchitecture(ctx, result)

	return result
}

// trySource attempts a single source. An empty path with nil error means the
// source did not apply (e.g. system path lookup for a cross build).
func (m *Manager) trySource(ctx context.Context, descriptor *Descriptor, source Source) (string, error) {
	switch source.Kind {
	case SourcePrestaged:
		return m.fromPrestaged(descriptor, source.Location)
	case SourceSystemPath:
		return m.fromSystemPath(descriptor)
	case SourceRemoteArchive:
		return m.fromRemoteArchive(ctx, descriptor, source.Location)
	default:
		return "", fmt.Errorf("unknown source kind %q", source.Kind)
	}
}

// fromPrestaged checks the operator-populated directory for an executable file.
func (m *Manager) fromPrestaged(descriptor *Descriptor, dir string) (string, error) {
	path := filepath.Join(dir, descriptor.FileName)

	info, err := os.Stat(path)
	if err != nil {
		return "", nil //nolint:nilerr // Absence just moves the chain along.
	}

	if info.IsDir() || info.Size() == 0 {
		return "", nil
	}

	if m.target.OS == config.OSMacos && info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%s exists but is not executable", path)
	}

	return path, nil
}

// fromSystemPath copies a same-named host tool into the pre-staged directory.
// Only valid for native builds: a system-installed tool reflects the host's
// OS and architecture, not the target's.
func (m *Manager) fromSystemPath(descriptor *Descriptor) (string, error) {
	if m.target.NeedsEmulation() || !m.targetMatchesHostOS() {
		return "", nil
	}

	hostPath, err := exec.LookPath(descriptor.Name)
	if err != nil {
		return "", nil //nolint:nilerr // Not found on PATH, try the next source.
	}

	destPath := filepath.Join(m.PrestagedDir(), descriptor.FileName)
	if err = installBinary(hostPath, destPath); err != nil {
		return "", err
	}

	return destPath, nil
}

// fromRemoteArchive downloads one archive URL, extracts it and stages the binary.
func (m *Manager) fromRemoteArchive(ctx context.Context, descriptor *Descriptor, url string) (string, error) {
	workDir, err := m.ensureWorkDir()
	if err != nil {
		return "", err
	}

	scratch, err := os.MkdirTemp(workDir, descriptor.Name+"-")
	if err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	archivePath := filepath.Join(scratch, "archive")
	if err = m.downloader.Fetch(ctx, url, archivePath); err != nil {
		return "", err
	}

	extractDir := filepath.Join(scratch, "extracted")
	if err = extractArchive(archivePath, extractDir); err != nil {
		return "", err
	}

	foundPath, err := findNamedFile(extractDir, descriptor.FileName)
	if err != nil {
		return "", err
	}

	destPath := filepath.Join(m.PrestagedDir(), descriptor.FileName)
	if err = installBinary(foundPath, destPath); err != nil {
		return "", err
	}

	return destPath, nil
}

// verifyArchitecture compares the resolved binary against the target
// architecture. Introspection is heuristic, so neither a mismatch nor an
// unreadable format may block the build.
func (m *Manager) verifyArchitecture(ctx context.Context, result *Result) {
	descriptor := result.Descriptor
	result.Arch = inspect.Verify(result.Path, descriptor.ExpectedArch)

	switch result.Arch {
	case inspect.VerdictMismatch:
		warning := fmt.Sprintf("%s reports %s, expected %s",
			descriptor.Name, inspect.Describe(result.Path), descriptor.ExpectedArch)
		result.Warnings = append(result.Warnings, warning)
		logger.Warn(ctx, warning)
	case inspect.VerdictUnknown:
		logger.InfoKV(ctx, "Architecture of binary could not be determined",
			"binary", descriptor.Name, "path", result.Path)
	case inspect.VerdictMatch:
		logger.DebugKV(ctx, "Architecture verified",
			"binary", descriptor.Name, "arch", descriptor.ExpectedArch)
	}
}

// targetMatchesHostOS reports whether host-installed tools are usable
// for the target OS.
func (m *Manager) targetMatchesHostOS() bool {
	switch m.target.OS {
	case config.OSMacos:
		return m.target.HostOS == "darwin"
	case config.OSWindows:
		return m.target.HostOS == "windows"
	default:
		return false
	}
}

// ensureWorkDir lazily creates the scratch directory for downloads.
func (m *Manager) ensureWorkDir() (string, error) {
	if m.workDir != "" {
		return m.workDir, nil
	}

	dir, err := os.MkdirTemp("", "clip2gif-packager-acquire-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	m.workDir = dir

	return dir, nil
}

// cleanup removes downloaded archives and extraction scratch space.
func (m *Manager) cleanup() {
	if m.workDir == "" {
		return
	}

	_ = os.RemoveAll(m.workDir)
	m.workDir = ""
}
