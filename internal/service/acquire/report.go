package acquire

import (
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	// Ensure SHA512 is available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// ReportFilename is written into the per-OS pre-staged directory so
	// operators can audit what a build shipped and where it came from.
	ReportFilename = "ffmpeg-binaries.yaml"

	// reportChecksumFunction is used to fingerprint staged binaries.
	reportChecksumFunction crypto.Hash = crypto.SHA512
)

var errHashUnavailable = errors.New("hash function unavailable")

// Report is the on-disk acquisition summary.
type Report struct {
	// TargetOS and TargetArch identify the build this report belongs to.
	TargetOS   string `yaml:"target_os"`
	TargetArch string `yaml:"target_arch"`
	// Binaries maps binary names to their acquisition records.
	Binaries map[string]ReportEntry `yaml:"binaries"`
}

// ReportEntry records how one binary was obtained.
type ReportEntry struct {
	// Source is the source kind that won, or "unresolved".
	Source string `yaml:"source"`
	// Arch is the verification verdict at acquisition time.
	Arch string `yaml:"arch"`
	// Checksum is the base64-encoded SHA-512 of the staged file.
	Checksum string `yaml:"checksum,omitempty"`
}

// writeReport persists the acquisition summary for operator audit.
func (m *Manager) writeReport(results []*Result) error {
	report := &Report{
		TargetOS:   m.target.OS,
		TargetArch: m.target.Arch,
		Binaries:   make(map[string]ReportEntry, len(results)),
	}

	for _, result := range results {
		entry := ReportEntry{Source: "unresolved"}

		if result.Resolved() {
			entry.Source = string(result.Source)
			entry.Arch = result.Arch.String()

			checksum, err := fileChecksum(result.Path)
			if err != nil {
				return err
			}

			entry.Checksum = base64.StdEncoding.EncodeToString(checksum)
		}

		report.Binaries[result.Descriptor.Name] = entry
	}

	contents, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	dir := m.PrestagedDir()
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create pre-staged dir: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, ReportFilename), contents, 0o644) //nolint:gosec // Report is public metadata.
}

// fileChecksum returns checksum bytes for a file using reportChecksumFunction.
func fileChecksum(path string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	if !reportChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := reportChecksumFunction.New()
	if _, err = hasher.Write(contents); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}
