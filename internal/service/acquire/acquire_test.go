package acquire

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/clip2gif-packager/internal/config"
	"github.com/oshokin/clip2gif-packager/internal/inspect"
	"github.com/oshokin/clip2gif-packager/internal/platform"
)

// peX8664 builds a bare COFF header reporting an x86_64 machine so
// architecture verification has something real to chew on.
func peX8664() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, uint16(0x8664))
	buf.Write(make([]byte, 96))

	return buf.Bytes()
}

// zipWithFile builds an in-memory zip archive holding a single file.
func zipWithFile(t *testing.T, name string, contents []byte) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	writer := zip.NewWriter(buf)

	entry, err := writer.Create(name)
	require.NoError(t, err)

	_, err = entry.Write(contents)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return buf.Bytes()
}

func windowsTarget() *platform.Target {
	return &platform.Target{
		OS:       config.OSWindows,
		Arch:     platform.ArchX8664,
		HostOS:   "linux",
		HostArch: platform.ArchX8664,
	}
}

func managerFor(t *testing.T, target *platform.Target, sources map[string][]string, download bool) *Manager {
	t.Helper()

	cfg := &config.Config{
		App: config.App{
			Name:       "Clip2Gif",
			Executable: "clip2gif",
			BundleID:   "com.oshokin.clip2gif",
			Version:    "1.0.0",
		},
		TargetOS: target.OS,
		Binaries: config.Binaries{
			PrestagedDir: filepath.Join(t.TempDir(), "ffmpeg_binaries"),
			Names:        []string{"ffmpeg"},
			Download: config.Download{
				Enabled: download,
				Timeout: 5 * time.Second,
				Retries: 1,
				Sources: map[string]map[string][]string{target.OS: sources},
			},
		},
	}
	require.NoError(t, config.Validate(cfg))

	return NewManager(cfg, target)
}

// TestAcquire_PrestagedShortCircuits verifies that a pre-staged binary wins
// without any network traffic and without warnings.
func TestAcquire_PrestagedShortCircuits(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := managerFor(t, windowsTarget(), map[string][]string{"ffmpeg": {server.URL}}, true)

	prestaged := filepath.Join(m.PrestagedDir(), "ffmpeg.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(prestaged), 0o755))
	require.NoError(t, os.WriteFile(prestaged, peX8664(), 0o755))

	results, err := m.AcquireAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	require.True(t, result.Resolved())
	require.Equal(t, SourcePrestaged, result.Source)
	require.Equal(t, prestaged, result.Path)
	require.Empty(t, result.Warnings)
	require.Equal(t, inspect.VerdictMatch, result.Arch)
	require.Zero(t, hits.Load(), "remote source must not be consulted")
}

// TestAcquire_RemoteArchive resolves from a downloaded zip nested one directory deep.
func TestAcquire_RemoteArchive(t *testing.T) {
	t.Parallel()

	archive := zipWithFile(t, "ffmpeg-release/bin/ffmpeg.exe", peX8664())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	m := managerFor(t, windowsTarget(), map[string][]string{"ffmpeg": {server.URL}}, true)

	results, err := m.AcquireAll(context.Background())
	require.NoError(t, err)

	result := results[0]
	require.True(t, result.Resolved())
	require.Equal(t, SourceRemoteArchive, result.Source)
	require.Equal(t, filepath.Join(m.PrestagedDir(), "ffmpeg.exe"), result.Path)
	require.Equal(t, inspect.VerdictMatch, result.Arch)

	info, err := os.Stat(result.Path)
	require.NoError(t, err)
	require.Equal(t, defaultBinaryMode, info.Mode().Perm())
}

// TestAcquire_URLFallback exhausts a failing URL before trying the next one.
func TestAcquire_URLFallback(t *testing.T) {
	t.Parallel()

	archive := zipWithFile(t, "ffmpeg.exe", peX8664())

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer good.Close()

	m := managerFor(t, windowsTarget(), map[string][]string{"ffmpeg": {bad.URL, good.URL}}, true)

	results, err := m.AcquireAll(context.Background())
	require.NoError(t, err)
	require.True(t, results[0].Resolved())
	require.Equal(t, SourceRemoteArchive, results[0].Source)
}

// TestAcquire_AllSourcesFail leaves the binary unresolved with a warning,
// never an error.
func TestAcquire_AllSourcesFail(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	m := managerFor(t, windowsTarget(), map[string][]string{"ffmpeg": {server.URL}}, true)

	results, err := m.AcquireAll(context.Background())
	require.NoError(t, err)

	result := results[0]
	require.False(t, result.Resolved())
	require.Len(t, result.Warnings, 1)
	require.Equal(t, inspect.VerdictUnknown, result.Arch)
}

// TestAcquire_DownloadDisabled keeps remote sources out of the chain entirely.
func TestAcquire_DownloadDisabled(t *testing.T) {
	t.Parallel()

	m := managerFor(t, windowsTarget(), map[string][]string{"ffmpeg": {"http://127.0.0.1:1/unreachable"}}, false)

	for _, descriptor := range m.Descriptors() {
		for _, source := range descriptor.Sources {
			require.NotEqual(t, SourceRemoteArchive, source.Kind)
		}
	}
}

// TestAcquire_SystemPathSkippedForCrossOS never copies host tools for a foreign OS.
func TestAcquire_SystemPathSkippedForCrossOS(t *testing.T) {
	t.Parallel()

	m := managerFor(t, windowsTarget(), nil, false)

	path, err := m.fromSystemPath(&Descriptor{Name: "ffmpeg", FileName: "ffmpeg.exe"})
	require.NoError(t, err)
	require.Empty(t, path)
}

// TestAcquire_ReportWritten checks the audit report lands next to the staged files.
func TestAcquire_ReportWritten(t *testing.T) {
	t.Parallel()

	m := managerFor(t, windowsTarget(), nil, false)

	prestaged := filepath.Join(m.PrestagedDir(), "ffmpeg.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(prestaged), 0o755))
	require.NoError(t, os.WriteFile(prestaged, peX8664(), 0o755))

	_, err := m.AcquireAll(context.Background())
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(m.PrestagedDir(), ReportFilename))
	require.NoError(t, err)
	require.Contains(t, string(contents), "pre-staged")
	require.Contains(t, string(contents), "checksum")
}
