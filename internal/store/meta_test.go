package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaStore_LoadNonexistent_CreatesEmpty(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)
	assert.Empty(t, m.AllPaths())
}

func TestMetaStore_SetAndGetHash(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)

	m.SetHash("/path/to/file", "abc123")

	hash, ok := m.GetHash("/path/to/file")
	assert.True(t, ok)
	assert.Equal(t, "abc123", hash)
}

func TestMetaStore_SaveAndLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)

	m.SetMeta("/file1", "hash1", 1000)
	m.SetMeta("/file2", "hash2", 2000)
	require.NoError(t, m.Save())

	loaded, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)

	hash1, ok := loaded.GetHash("/file1")
	assert.True(t, ok)
	assert.Equal(t, "hash1", hash1)

	meta2, ok := loaded.GetMeta("/file2")
	assert.True(t, ok)
	assert.Equal(t, FileMeta{Hash: "hash2", Mtime: 2000}, meta2)
}

func TestMetaStore_Remove(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)

	m.SetHash("/file1", "hash1")
	m.Remove("/file1")

	_, ok := m.GetHash("/file1")
	assert.False(t, ok)
}

func TestMetaStore_AllPaths_ReturnsKeys(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)

	m.SetHash("/file1", "hash1")
	m.SetHash("/file2", "hash2")

	paths := m.AllPaths()
	assert.Len(t, paths, 2)
	assert.ElementsMatch(t, []string{"/file1", "/file2"}, paths)
}

func TestMetaStore_DeleteByPrefix(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "test-store")
	require.NoError(t, err)

	m.SetHash("/src/a.go", "h1")
	m.SetHash("/src/b.go", "h2")
	m.SetHash("/other/c.go", "h3")

	m.DeleteByPrefix("/src/")

	assert.ElementsMatch(t, []string{"/other/c.go"}, m.AllPaths())
}

func TestMetaStore_Save_CreatesExpectedPath(t *testing.T) {
	dir := t.TempDir()
	m, err := LoadMetaStore(dir, "my-repo")
	require.NoError(t, err)
	m.SetHash("/a", "h")
	require.NoError(t, m.Save())

	expected := filepath.Join(dir, "meta", "my-repo.json")
	assert.FileExists(t, expected)
}
