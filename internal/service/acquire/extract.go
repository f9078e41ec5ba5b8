package acquire

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	goupdate "github.com/doitdistributed/go-update"
)

var (
	errUnknownArchiveFormat = errors.New("unrecognized archive format")
	errBinaryNotInArchive   = errors.New("binary not found in archive")
)

// extractArchive unpacks an archive into destDir. The format is sniffed from
// the file's magic bytes because several release hosts serve archives from
// extensionless URLs.
func extractArchive(archivePath, destDir string) error {
	magic := make([]byte, 4)

	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	_, err = io.ReadFull(f, magic)

	_ = f.Close()

	if err != nil {
		return fmt.Errorf("read archive header: %w", err)
	}

	switch {
	case bytes.HasPrefix(magic, []byte("PK")):
		return extractZip(archivePath, destDir)
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		return extractTarGz(archivePath, destDir)
	default:
		return fmt.Errorf("%w: %s", errUnknownArchiveFormat, archivePath)
	}
}

// extractZip unpacks a zip archive, skipping anything that would escape destDir.
func extractZip(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	for _, entry := range reader.File {
		target := filepath.Join(destDir, entry.Name) //nolint:gosec // Checked below.
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}

			continue
		}

		if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", target, err)
		}

		if err = copyZipEntry(entry, target); err != nil {
			return err
		}
	}

	return nil
}

func copyZipEntry(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode())
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err = io.Copy(dst, src); err != nil { //nolint:gosec // Archives come from configured release hosts.
		_ = dst.Close()

		return fmt.Errorf("write file %s: %w", target, err)
	}

	return dst.Close()
}

// extractTarGz unpacks a tar.gz archive, skipping anything that would escape destDir.
func extractTarGz(archivePath, destDir string) error {
	archiveFile, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = archiveFile.Close()
	}()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}

	defer func() {
		_ = gzipReader.Close()
	}()

	tarReader := tar.NewReader(gzipReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		target := filepath.Join(destDir, header.Name) //nolint:gosec // Checked below.
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err = os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent dir for %s: %w", target, err)
			}

			if err = copyTarEntry(tarReader, header, target); err != nil {
				return err
			}
		default:
			// Symlinks and special files never carry the binaries we need.
			continue
		}
	}
}

func copyTarEntry(tarReader *tar.Reader, header *tar.Header, target string) error {
	out, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode)) //nolint:gosec // Mode comes from the archive.
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err = io.Copy(out, tarReader); err != nil { //nolint:gosec // Archives come from configured release hosts.
		_ = out.Close()

		return fmt.Errorf("write file %s: %w", target, err)
	}

	return out.Close()
}

// findNamedFile walks root recursively and returns the first regular file
// whose base name matches. Release archives nest binaries at varying depths
// (bin/, <build-name>/bin/, or the root), so a plain directory listing is
// not enough.
func findNamedFile(root, name string) (string, error) {
	var found string

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.Type().IsRegular() || entry.Name() != name {
			return nil
		}

		found = path

		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("search extracted archive: %w", err)
	}

	if found == "" {
		return "", fmt.Errorf("%w: %s under %s", errBinaryNotInArchive, name, root)
	}

	return found, nil
}

// installBinary places the file at srcPath into destPath with executable
// permissions. go-update applies the write atomically, keeping any previous
// binary intact when the install fails halfway.
func installBinary(srcPath, destPath string) error {
	data, err := os.ReadFile(filepath.Clean(srcPath))
	if err != nil {
		return fmt.Errorf("read resolved binary: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create pre-staged dir: %w", err)
	}

	// go-update swaps the previous file out, so the target must exist.
	if _, err = os.Stat(destPath); err != nil && os.IsNotExist(err) {
		var placeholder *os.File
		if placeholder, err = os.Create(filepath.Clean(destPath)); err != nil {
			return fmt.Errorf("create install target: %w", err)
		}

		_ = placeholder.Close()
	}

	options := goupdate.Options{
		TargetPath: destPath,
		TargetMode: defaultBinaryMode,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}

	// go-update leaves the replaced file behind as .old.
	oldPath := destPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}
