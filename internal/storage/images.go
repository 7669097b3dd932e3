// Package storage persists scan images on the local filesystem. File names
// carry a per-request uuid prefix, so concurrent requests never collide.
package storage

import (
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Images writes and deletes scan image files under a single root directory.
type Images struct {
	dir string
}

// NewImages ensures dir exists and returns a store rooted at it.
func NewImages(dir string) (*Images, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &Images{dir: dir}, nil
}

// Dir returns the storage root.
func (s *Images) Dir() string { return s.dir }

// WriteImage encodes img as PNG under name and returns the stored path.
// name must be a bare file name; path traversal is rejected.
func (s *Images) WriteImage(name string, img image.Image) (string, error) {
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid image name %q", name)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close image file: %w", err)
	}
	return path, nil
}

// DeleteImage removes a stored file. A missing file is not an error;
// deletion must be idempotent because record deletion retries after
// partial failures.
func (s *Images) DeleteImage(path string) bool {
	if path == "" {
		return false
	}
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("image delete failed", "path", path, "error", err)
		}
		return false
	}
	return true
}
