package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks a clip archive into dir, removes the archive and returns
// the typed manifest of the scene. The archive is kept when extraction fails.
func Extract(archivePath, dir string) (Manifest, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return Manifest{}, &ExtractionError{Archive: archivePath, Reason: "unreadable archive", Err: err}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		reader.Close()
		return Manifest{}, &ExtractionError{Archive: archivePath, Reason: "cannot create scene directory", Err: err}
	}

	for _, f := range reader.File {
		if err := extractFile(f, dir); err != nil {
			reader.Close()
			return Manifest{}, &ExtractionError{Archive: archivePath, Reason: f.Name, Err: err}
		}
	}
	reader.Close()

	manifest, err := Describe(dir)
	if err != nil {
		return Manifest{}, &ExtractionError{Archive: archivePath, Reason: "cannot describe contents", Err: err}
	}
	if !manifest.Valid() {
		return manifest, &ExtractionError{Archive: archivePath, Reason: fmt.Sprintf("no analytic raster or metadata among %d files", len(manifest.Files))}
	}
	if err := manifest.Save(); err != nil {
		return manifest, &ExtractionError{Archive: archivePath, Reason: "cannot save manifest", Err: err}
	}

	if err := os.Remove(archivePath); err != nil {
		slog.Warn("Failed to remove archive", "archive", archivePath, "error", err)
	}
	return manifest, nil
}

func extractFile(f *zip.File, dir string) error {
	target := filepath.Join(dir, filepath.FromSlash(f.Name))
	if target != filepath.Clean(dir) && !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return fmt.Errorf("entry escapes destination")
	}
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
