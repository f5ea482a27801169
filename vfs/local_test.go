package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return b
}

func TestNewLocalBackendRequiresAbsoluteRoot(t *testing.T) {
	_, err := NewLocalBackend("relative/root")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLocalBackendReadWriteRoundTrip(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, b.WriteFile(ctx, "docs/readme.md", []byte("hello")))

	data, err := b.ReadFile(ctx, "docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// The file landed inside the jail
	_, err = os.Stat(filepath.Join(b.Root(), "docs", "readme.md"))
	assert.NoError(t, err)
}

func TestLocalBackendList(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, b.WriteFile(ctx, "a.txt", []byte("a")))
	require.NoError(t, b.WriteFile(ctx, "sub/b.txt", []byte("b")))

	entries, err := b.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := make(map[string]FileInfo)
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.False(t, byName["a.txt"].IsDir)
	assert.Equal(t, "a.txt", byName["a.txt"].Path)
	assert.True(t, byName["sub"].IsDir)

	sub, err := b.List(ctx, "sub")
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "sub/b.txt", sub[0].Path)

	_, err = b.List(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBackendBlocksEscapes(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	_, err := b.ReadFile(ctx, "../outside.txt")
	assert.ErrorIs(t, err, ErrPathEscape)

	err = b.WriteFile(ctx, "sub/../../outside.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrPathEscape)

	err = b.DeletePath(ctx, "..")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestLocalBackendDeleteAndStat(t *testing.T) {
	b := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, b.WriteFile(ctx, "dir/file.txt", []byte("x")))

	info, err := b.Stat(ctx, "dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "file.txt", info.Name)
	assert.Equal(t, "dir/file.txt", info.Path)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(1), info.Size)

	require.NoError(t, b.DeletePath(ctx, "dir"))

	_, err = b.Stat(ctx, "dir/file.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	err = b.DeletePath(ctx, "dir")
	assert.ErrorIs(t, err, ErrNotFound)

	// The jail root itself is never deletable
	err = b.DeletePath(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
