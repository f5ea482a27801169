package vfs

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// LocalBackend serves files from a jailed directory on local disk. Every
// incoming path goes through ResolveWithinRoot before touching the OS.
type LocalBackend struct {
	root string
}

// Compile-time interface check
var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates a local backend jailed to root. The root must be
// an absolute path.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("jail root %q is not absolute: %w", root, ErrInvalidInput)
	}
	return &LocalBackend{root: filepath.Clean(root)}, nil
}

// Name returns the backend name used for selection
func (l *LocalBackend) Name() string { return "local" }

// Root returns the jail root
func (l *LocalBackend) Root() string { return l.root }

// Available reports whether the jail root exists and is a directory
func (l *LocalBackend) Available(ctx context.Context) bool {
	info, err := os.Stat(l.root)
	return err == nil && info.IsDir()
}

// List lists the entries of dir
func (l *LocalBackend) List(ctx context.Context, dir string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, rel, err := ResolveWithinRoot(l.root, dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory %q: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to list %q: %w", rel, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		info := FileInfo{
			Name:  entry.Name(),
			Path:  path.Join(rel, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if meta, err := entry.Info(); err == nil {
			info.Size = meta.Size()
			info.ModTime = meta.ModTime()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ReadFile reads the contents of filePath
func (l *LocalBackend) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, rel, err := ResolveWithinRoot(l.root, filePath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %q: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %q: %w", rel, err)
	}
	return data, nil
}

// WriteFile writes data to filePath, creating parent directories as needed
func (l *LocalBackend) WriteFile(ctx context.Context, filePath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs, rel, err := ResolveWithinRoot(l.root, filePath)
	if err != nil {
		return err
	}
	if rel == "" {
		return fmt.Errorf("cannot write to the jail root itself: %w", ErrInvalidInput)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directories for %q: %w", rel, err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", rel, err)
	}
	return nil
}

// DeletePath removes a file or directory tree. Deleting the jail root
// itself is refused.
func (l *LocalBackend) DeletePath(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs, rel, err := ResolveWithinRoot(l.root, target)
	if err != nil {
		return err
	}
	if rel == "" {
		return fmt.Errorf("cannot delete the jail root itself: %w", ErrInvalidInput)
	}

	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path %q: %w", rel, ErrNotFound)
		}
		return fmt.Errorf("failed to stat %q: %w", rel, err)
	}

	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("failed to delete %q: %w", rel, err)
	}
	return nil
}

// Stat returns file metadata for target
func (l *LocalBackend) Stat(ctx context.Context, target string) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, rel, err := ResolveWithinRoot(l.root, target)
	if err != nil {
		return nil, err
	}

	meta, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path %q: %w", rel, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat %q: %w", rel, err)
	}

	return &FileInfo{
		Name:    meta.Name(),
		Path:    rel,
		Size:    meta.Size(),
		IsDir:   meta.IsDir(),
		ModTime: meta.ModTime(),
	}, nil
}
