package storage

import (
	"net/url"
	"os"
	"path"
	"path/filepath"

	apperrors "mfpget/pkg/errors"
)

// Manager owns the output directory and derives destination paths from
// resolved file URLs. Presence of a destination file doubles as the
// idempotency marker: transfers never overwrite.
type Manager struct {
	outputDir string
}

// NewManager validates and creates the output directory
func NewManager(outputDir string) (*Manager, error) {
	if info, err := os.Stat(outputDir); err == nil && !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrorTypeConfig, "output path %q exists and is not a directory", outputDir)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeConfig, "failed to create output directory", err)
	}

	return &Manager{outputDir: outputDir}, nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// PathFor derives the destination path from the final path segment of a
// resolved file URL
func (m *Manager) PathFor(fileURL string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrorTypeConfig, "unparseable file URL", err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", apperrors.Newf(apperrors.ErrorTypeConfig, "file URL %q has no usable filename", fileURL)
	}

	return filepath.Join(m.outputDir, name), nil
}

// Exists reports whether a destination file is already on disk
func (m *Manager) Exists(dest string) bool {
	_, err := os.Stat(dest)
	return err == nil
}
