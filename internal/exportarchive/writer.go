package exportarchive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"
)

// CreateTarGz creates a tar.gz archive from a source directory.
// The baseDir parameter specifies the directory name inside the archive.
// If createParentDir is true, parent directories of dstPath are created.
func CreateTarGz(srcDir, dstPath, baseDir string, createParentDir bool) error {
	return createTarArchive(srcDir, dstPath, baseDir, createParentDir, func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	})
}

// CreateTarXz creates a tar.xz archive from a source directory, used by the
// CLI's "export" command to package decoded BLOB dumps for transport.
func CreateTarXz(srcDir, dstPath, baseDir string, createParentDir bool) error {
	return createTarArchive(srcDir, dstPath, baseDir, createParentDir, func(w io.Writer) (io.WriteCloser, error) {
		return xz.NewWriter(w)
	})
}

func createTarArchive(
	srcDir, dstPath, baseDir string,
	createParentDir bool,
	newCompressor func(io.Writer) (io.WriteCloser, error),
) error {
	if createParentDir {
		if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
			return fmt.Errorf("failed to create parent directory: %w", err)
		}
	}

	outFile, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	cw, err := newCompressor(outFile)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	defer cw.Close()

	tw := tar.NewWriter(cw)
	defer tw.Close()

	now := time.Now()

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}

		// Skip root directory
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		// Set the name with the base directory prefix
		header.Name = baseDir + "/" + relPath
		if info.IsDir() {
			header.Name += "/"
		}

		// Give every entry the same timestamp: the time the archive was started
		header.ModTime = now

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.IsDir() {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			if _, err := io.Copy(tw, file); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	return nil
}

// CreateExportArchive packages a directory of decoded BLOB dump files into a
// tar.xz archive, deriving the in-archive base directory name from srcDir.
func CreateExportArchive(srcDir, dstPath string) error {
	baseDir := filepath.Base(srcDir)
	return CreateTarXz(srcDir, dstPath, baseDir, true)
}
