package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/can1357/smgrep/internal/chunk"
	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/store"
)

func newTestSyncEngine(t *testing.T, root string) (*SyncEngine, func()) {
	t.Helper()
	dataDir := t.TempDir()

	vecs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	text, err := store.NewSQLiteBM25Index("", store.DefaultBM25Config())
	require.NoError(t, err)
	repoStore := store.NewRepoStore(vecs, text, "static", embed.StaticDimensions)

	embedder := embed.NewStaticEmbedder()
	engine := NewSyncEngine(root, dataDir, "test-repo", chunk.NewCodeChunker(), embedder, repoStore, 8)

	return engine, func() { _ = repoStore.Close() }
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const sampleGo = `package sample

func Add(a, b int) int {
	return a + b
}

func Sub(a, b int) int {
	return a - b
}
`

func TestSyncEngine_InitialSync_IndexesNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()

	result, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Deleted)
}

func TestSyncEngine_InitialSync_IsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()

	_, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)

	second, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Processed)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 1, second.Skipped)
}

func TestSyncEngine_InitialSync_ReindexesChangedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()

	_, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)

	writeFile(t, root, "sample.go", sampleGo+"\nfunc Mul(a, b int) int { return a * b }\n")

	second, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Indexed)
	assert.Equal(t, 0, second.Skipped)
}

func TestSyncEngine_InitialSync_DeletesRemovedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()

	_, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "sample.go")))

	second, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Deleted)
	assert.Equal(t, 0, second.Processed)
}

func TestSyncEngine_InitialSync_DryRunSuppressesMutation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()

	result, err := engine.InitialSync(context.Background(), true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)

	empty, err := engine.store.IsEmpty(context.Background())
	require.NoError(t, err)
	assert.True(t, empty, "dry run must not insert any records")
}

func TestSyncEngine_SetMaxWorkers_StillIndexesAllFiles(t *testing.T) {
	// Given: a bounded worker count (RSGREP_THREADS=1)
	root := t.TempDir()
	writeFile(t, root, "a.go", sampleGo)
	writeFile(t, root, "b.go", sampleGo)
	writeFile(t, root, "c.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()
	engine.SetMaxWorkers(1)

	// When: running initial sync
	result, err := engine.InitialSync(context.Background(), false, nil)

	// Then: every file is still processed despite the concurrency cap
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Indexed)
}

func TestSyncEngine_SetSkipMetaSave_StillIndexesFiles(t *testing.T) {
	// Given: intermediate meta persistence suppressed (RSGREP_SKIP_META_SAVE=true)
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()
	engine.SetSkipMetaSave(true)

	// When: running initial sync
	result, err := engine.InitialSync(context.Background(), false, nil)

	// Then: the final meta save still runs, so a second sync sees it as unchanged
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)

	second, err := engine.InitialSync(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 1, second.Skipped)
}

func TestSyncEngine_InitialSync_ProgressCallbackFires(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sample.go", sampleGo)

	engine, cleanup := newTestSyncEngine(t, root)
	defer cleanup()

	var events []SyncProgress
	_, err := engine.InitialSync(context.Background(), false, func(p SyncProgress) {
		events = append(events, p)
	})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, 1, events[0].Total)
}
