// internal/codecontext/dir.go
package codecontext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DirProvider reads files from a local checkout. Finding paths are relative to
// the root, and reads go through an os.Root so neither ".." nor a symlink can
// leave it.
type DirProvider struct {
	dir  string
	root *os.Root
}

// NewDirProvider opens dir as the context root.
func NewDirProvider(dir string) (*DirProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("context directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("context directory %s is not a directory", dir)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("context directory: %w", err)
	}
	return &DirProvider{dir: dir, root: root}, nil
}

// Snippet returns the file content. Paths that would escape the root are refused.
func (d *DirProvider) Snippet(_ context.Context, path string) (string, error) {
	rel := filepath.FromSlash(path)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the context directory", path)
	}
	raw, err := d.root.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %q in context directory %s: %w", path, d.dir, err)
	}
	return string(raw), nil
}

// Close releases the directory handle.
func (d *DirProvider) Close() error {
	return d.root.Close()
}
