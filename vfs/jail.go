package vfs

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/giantswarm/mcp-fsgate/internal/util"
)

// Sentinel errors for path containment and input validation.
var (
	// ErrPathEscape indicates the resolved path would leave the jail root.
	// This is a security violation and must never be downgraded to a plain
	// not-found.
	ErrPathEscape = errors.New("vfs: path escapes jail root")

	// ErrInvalidInput indicates a caller error such as a non-absolute jail
	// root or a malformed glob pattern. Not retryable.
	ErrInvalidInput = errors.New("vfs: invalid input")
)

// ResolveWithinRoot resolves an untrusted input path against an absolute
// jail root. It returns the absolute resolved path and the normalized
// root-relative path.
//
// Input normalization: backslashes become forward slashes, leading slashes
// are stripped (an absolute-looking input is treated as root-relative, not
// as an escape attempt), and empty input resolves to the root itself.
// Any `..` segment that would leave the root fails with ErrPathEscape.
func ResolveWithinRoot(root, input string) (absPath, relPath string, err error) {
	if !filepath.IsAbs(root) {
		return "", "", fmt.Errorf("jail root %q is not absolute: %w", root, ErrInvalidInput)
	}
	root = filepath.Clean(root)

	rel := util.NormalizeSlashes(input)
	rel = strings.TrimLeft(rel, "/")
	if rel == "" {
		return root, "", nil
	}

	// Lexical canonicalization collapses interior `..` segments; anything
	// still climbing after that is an escape.
	rel = path.Clean(rel)
	if rel == "." {
		return root, "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf("path %q: %w", input, ErrPathEscape)
	}

	abs := filepath.Join(root, filepath.FromSlash(rel))
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path %q: %w", input, ErrPathEscape)
	}

	return abs, rel, nil
}
