package vfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/giantswarm/mcp-fsgate/instrumentation"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound indicates the path does not exist on the backend.
	ErrNotFound = errors.New("vfs: not found")

	// ErrBackendUnavailable indicates the backend cannot service requests.
	ErrBackendUnavailable = errors.New("vfs: backend unavailable")
)

// AutoBackend selects the first available backend in AutoProbeOrder.
const AutoBackend = "auto"

// AutoProbeOrder is the fixed priority for "auto" backend selection.
// Local disk wins over hosted backends; registration order is irrelevant.
var AutoProbeOrder = []string{"local", "github"}

// FileInfo describes one entry as seen through a backend. Path is the full
// slash-separated path relative to the backend root.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time,omitempty"`
}

// Backend is the capability set a storage integration must satisfy.
// All paths are slash-separated and relative to the backend root; each
// backend applies its own containment before touching storage.
type Backend interface {
	Name() string
	Available(ctx context.Context) bool
	List(ctx context.Context, dir string) ([]FileInfo, error)
	ReadFile(ctx context.Context, filePath string) ([]byte, error)
	WriteFile(ctx context.Context, filePath string, data []byte) error
	DeletePath(ctx context.Context, target string) error
	Stat(ctx context.Context, target string) (*FileInfo, error)
}

// DefaultGlobMaxResults caps glob matches when the caller does not.
const DefaultGlobMaxResults = 200

// GlobOptions controls a Glob search. The zero value means: search from
// the backend root, cap at DefaultGlobMaxResults, skip hidden entries,
// include directories.
type GlobOptions struct {
	// Path is the search root, relative to the backend root.
	Path string

	// MaxResults caps the number of matches; zero or negative selects
	// DefaultGlobMaxResults.
	MaxResults int

	// IncludeHidden also matches entries whose name starts with a dot.
	IncludeHidden bool

	// ExcludeDirectories drops directory entries from the matches.
	ExcludeDirectories bool
}

// GlobResult is the outcome of a Glob search. Truncated is set when the
// search stopped at MaxResults; traversal order beyond "listing order as
// returned by the backend" is not guaranteed.
type GlobResult struct {
	Matches   []FileInfo `json:"matches"`
	Truncated bool       `json:"truncated"`
}

// FS dispatches filesystem operations to registered backends.
type FS struct {
	backends map[string]Backend

	instrumentation *instrumentation.Instrumentation
	logger          *slog.Logger
}

// New creates an empty facade. Register backends before use.
func New() *FS {
	return &FS{
		backends: make(map[string]Backend),
		logger:   slog.Default(),
	}
}

// SetLogger sets a custom logger
func (f *FS) SetLogger(logger *slog.Logger) {
	f.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the facade
func (f *FS) SetInstrumentation(inst *instrumentation.Instrumentation) {
	f.instrumentation = inst
}

// Register adds a backend under its own name. Registering the same name
// twice replaces the earlier backend.
func (f *FS) Register(b Backend) {
	f.backends[b.Name()] = b
}

// Select returns the backend for name. An empty name or AutoBackend probes
// Available across AutoProbeOrder and picks the first that reports true.
func (f *FS) Select(ctx context.Context, name string) (Backend, error) {
	if name != "" && name != AutoBackend {
		b, ok := f.backends[name]
		if !ok {
			return nil, fmt.Errorf("backend %q not registered: %w", name, ErrInvalidInput)
		}
		return b, nil
	}

	for _, candidate := range AutoProbeOrder {
		b, ok := f.backends[candidate]
		if !ok {
			continue
		}
		if b.Available(ctx) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no backend available: %w", ErrBackendUnavailable)
}

// List lists a directory on the selected backend
func (f *FS) List(ctx context.Context, backend, dir string) ([]FileInfo, error) {
	b, err := f.Select(ctx, backend)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	entries, err := b.List(ctx, dir)
	f.record(ctx, b.Name(), "list", err, start)
	return entries, err
}

// ReadFile reads a file on the selected backend
func (f *FS) ReadFile(ctx context.Context, backend, filePath string) ([]byte, error) {
	b, err := f.Select(ctx, backend)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := b.ReadFile(ctx, filePath)
	f.record(ctx, b.Name(), "read", err, start)
	return data, err
}

// WriteFile writes a file on the selected backend
func (f *FS) WriteFile(ctx context.Context, backend, filePath string, data []byte) error {
	b, err := f.Select(ctx, backend)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.WriteFile(ctx, filePath, data)
	f.record(ctx, b.Name(), "write", err, start)
	return err
}

// DeletePath deletes a file or directory on the selected backend
func (f *FS) DeletePath(ctx context.Context, backend, target string) error {
	b, err := f.Select(ctx, backend)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.DeletePath(ctx, target)
	f.record(ctx, b.Name(), "delete", err, start)
	return err
}

// Stat stats a path on the selected backend
func (f *FS) Stat(ctx context.Context, backend, target string) (*FileInfo, error) {
	b, err := f.Select(ctx, backend)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	info, err := b.Stat(ctx, target)
	f.record(ctx, b.Name(), "stat", err, start)
	return info, err
}

// Glob walks the backend from the search root and matches entries against
// pattern. Matching is evaluated against the path relative to the search
// root, so `*.md` matches files directly under opts.Path however deep that
// root is nested; matched entries still report their full backend path.
func (f *FS) Glob(ctx context.Context, backend, pattern string, opts GlobOptions) (*GlobResult, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("glob pattern %q is malformed: %w", pattern, ErrInvalidInput)
	}

	b, err := f.Select(ctx, backend)
	if err != nil {
		return nil, err
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultGlobMaxResults
	}

	searchRoot := normalizeSearchRoot(opts.Path)

	start := time.Now()
	result := &GlobResult{}
	err = f.globWalk(ctx, b, pattern, searchRoot, searchRoot, maxResults, opts, result)
	f.record(ctx, b.Name(), "glob", err, start)
	if err != nil {
		return nil, err
	}

	if result.Truncated && f.instrumentation != nil {
		f.instrumentation.Metrics().RecordGlobTruncated(ctx)
	}

	return result, nil
}

// globWalk recursively lists dir, collecting matches into result. Returns
// early once the result is truncated.
func (f *FS) globWalk(ctx context.Context, b Backend, pattern, searchRoot, dir string, maxResults int, opts GlobOptions, result *GlobResult) error {
	if result.Truncated {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := b.List(ctx, dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !opts.IncludeHidden && strings.HasPrefix(entry.Name, ".") {
			continue
		}

		rel := relativeTo(searchRoot, entry.Path)
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			return fmt.Errorf("glob pattern %q is malformed: %w", pattern, ErrInvalidInput)
		}

		if matched && (!entry.IsDir || !opts.ExcludeDirectories) {
			result.Matches = append(result.Matches, entry)
			if len(result.Matches) >= maxResults {
				result.Truncated = true
				return nil
			}
		}

		if entry.IsDir {
			if err := f.globWalk(ctx, b, pattern, searchRoot, entry.Path, maxResults, opts, result); err != nil {
				return err
			}
			if result.Truncated {
				return nil
			}
		}
	}
	return nil
}

// relativeTo strips the search root prefix from a backend path
func relativeTo(searchRoot, entryPath string) string {
	if searchRoot == "" {
		return entryPath
	}
	return strings.TrimPrefix(strings.TrimPrefix(entryPath, searchRoot), "/")
}

func (f *FS) record(ctx context.Context, backend, operation string, err error, start time.Time) {
	if f.instrumentation == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	durationMs := float64(time.Since(start).Milliseconds())
	f.instrumentation.Metrics().RecordFSOperation(ctx, backend, operation, result, durationMs)
}

// normalizeSearchRoot cleans a caller-supplied search root into the
// backend's slash-relative form.
func normalizeSearchRoot(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
