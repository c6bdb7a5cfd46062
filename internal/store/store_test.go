package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepoStore(t *testing.T) *RepoStore {
	t.Helper()
	vecs, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	text, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	s := NewRepoStore(vecs, text, "test-model", 4)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(id, path string, dense []float32) VectorRecord {
	return VectorRecord{
		ID:        id,
		Path:      path,
		Hash:      "deadbeef",
		ChunkType: ChunkTypeFunction,
		Content:   "func add(a, b int) int { return a + b }",
		StartLine: 0,
		EndLine:   3,
		Dense:     dense,
	}
}

func TestRepoStore_InsertAndListFiles(t *testing.T) {
	s := newTestRepoStore(t)
	ctx := context.Background()

	err := s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:1", "a.go", []float32{1, 0, 0, 0}),
		sampleRecord("b.go:1", "b.go", []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, files)

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestRepoStore_Search_DenseRecall(t *testing.T) {
	s := newTestRepoStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:1", "a.go", []float32{1, 0, 0, 0}),
		sampleRecord("b.go:1", "b.go", []float32{0, 1, 0, 0}),
	}))

	resp, err := s.Search(ctx, SearchParams{DenseVector: []float32{1, 0, 0, 0}, Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "a.go", resp.Results[0].Path)
	assert.Equal(t, IndexStatusReady, resp.Status)
}

func TestRepoStore_Search_PathFilter(t *testing.T) {
	s := newTestRepoStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:1", "a.go", []float32{1, 0, 0, 0}),
		sampleRecord("b.go:1", "b.go", []float32{1, 0, 0, 0}),
	}))

	resp, err := s.Search(ctx, SearchParams{DenseVector: []float32{1, 0, 0, 0}, Limit: 5, PathFilter: "a.go"})
	require.NoError(t, err)
	for _, r := range resp.Results {
		assert.Equal(t, "a.go", r.Path)
	}
}

func TestRepoStore_DeleteFile_RemovesAllItsRecords(t *testing.T) {
	s := newTestRepoStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:anchor", "a.go", []float32{1, 0, 0, 0}),
		sampleRecord("a.go:1", "a.go", []float32{0.9, 0.1, 0, 0}),
		sampleRecord("b.go:1", "b.go", []float32{0, 1, 0, 0}),
	}))

	require.NoError(t, s.DeleteFile(ctx, "a.go"))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go"}, files)
}

func TestRepoStore_GetFileHashes(t *testing.T) {
	s := newTestRepoStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:1", "a.go", []float32{1, 0, 0, 0}),
	}))

	hashes, err := s.GetFileHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", hashes["a.go"])
}

func TestRepoStore_GetInfo_ReflectsInsertedRecords(t *testing.T) {
	s := newTestRepoStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:1", "a.go", []float32{1, 0, 0, 0}),
		sampleRecord("b.go:1", "b.go", []float32{0, 1, 0, 0}),
	}))

	info, err := s.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.ChunkCount)
	assert.Equal(t, 2, info.FileCount)
	assert.Equal(t, "test-model", info.IndexModel)
}

func TestRepoStore_SaveAndLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()

	// The text index must be bound to its final on-disk path from construction:
	// SQLiteBM25Index.Save/Load operate on whichever db connection is already
	// open, not on a path handed to Save() after the fact.
	vecs, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	text, err := NewBM25IndexWithBackend(filepath.Join(dir, "bm25"), DefaultBM25Config(), "sqlite")
	require.NoError(t, err)
	s := NewRepoStore(vecs, text, "test-model", 4)

	ctx := context.Background()
	require.NoError(t, s.InsertBatch(ctx, []VectorRecord{
		sampleRecord("a.go:1", "a.go", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.Save(dir))
	require.NoError(t, s.Close())

	vecs2, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	text2, err := NewSQLiteBM25Index(filepath.Join(dir, "bm25")+".db", DefaultBM25Config())
	require.NoError(t, err)
	loaded := NewRepoStore(vecs2, text2, "", 0)
	require.NoError(t, loaded.Load(dir))
	defer loaded.Close()

	files, err := loaded.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go"}, files)

	info, err := loaded.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-model", info.IndexModel)
}

func TestRepoStore_Close_Idempotent(t *testing.T) {
	s := newTestRepoStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestRepoStore_InsertBatch_EmptyIsNoop(t *testing.T) {
	s := newTestRepoStore(t)
	require.NoError(t, s.InsertBatch(context.Background(), nil))
}
