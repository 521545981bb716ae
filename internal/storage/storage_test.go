package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdviz-collector/cdviz-collector/internal/storage"
)

func TestFSBackend_ListRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.json"), []byte("{}"), 0o644))

	b := storage.NewFSBackend(dir)
	entries, err := b.List(context.Background(), "", true)
	require.NoError(t, err)

	var files []string
	for _, e := range entries {
		if e.IsFile {
			files = append(files, e.Path)
		}
	}
	assert.ElementsMatch(t, []string{"a.json", "sub/b.json"}, files)
}

func TestFSBackend_ListNonRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.json"), []byte("{}"), 0o644))

	b := storage.NewFSBackend(dir)
	entries, err := b.List(context.Background(), "", false)
	require.NoError(t, err)

	var files []string
	for _, e := range entries {
		if e.IsFile {
			files = append(files, e.Path)
		}
	}
	assert.ElementsMatch(t, []string{"a.json"}, files)
}

func TestFSBackend_ReadWrite(t *testing.T) {
	dir := t.TempDir()
	b := storage.NewFSBackend(dir)

	require.NoError(t, b.Write(context.Background(), "nested/out.json", []byte(`{"x":1}`)))
	data, err := b.Read(context.Background(), "nested/out.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(data))
}

func TestNew_UnsupportedKind(t *testing.T) {
	_, err := storage.New(storage.Config{Kind: "s3"})
	require.Error(t, err)
}
