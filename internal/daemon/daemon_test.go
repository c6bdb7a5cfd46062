package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/can1357/smgrep/internal/chunk"
	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/index"
	"github.com/can1357/smgrep/internal/search"
	"github.com/can1357/smgrep/internal/store"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{
		DataDir:             t.TempDir(),
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 2 * time.Second,
	}
	return cfg
}

func newTestDaemon(t *testing.T, root, storeID string) *Daemon {
	t.Helper()
	cfg := testConfig(t)

	vecs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	text, err := store.NewSQLiteBM25Index("", store.DefaultBM25Config())
	require.NoError(t, err)
	repoStore := store.NewRepoStore(vecs, text, "static", embed.StaticDimensions)

	embedder := embed.NewStaticEmbedder()
	syncEngine := index.NewSyncEngine(root, cfg.DataDir, storeID, chunk.NewCodeChunker(), embedder, repoStore, 8)
	engine := search.NewEngine(repoStore, embedder)

	d, err := NewDaemon(cfg, root, storeID, repoStore, engine, syncEngine)
	require.NoError(t, err)
	return d
}

func TestDaemon_StartStop(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))

	d := newTestDaemon(t, root, "repo1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(d.cfg.SocketPath("repo1"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemon_ClientSearchAndHealth(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nfunc Add(x, y int) int { return x+y }\n"), 0o644))

	d := newTestDaemon(t, root, "repo2")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(d.cfg.SocketPath("repo2"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	client := NewClient(d.cfg, root, "repo2")
	require.Eventually(t, client.IsRunning, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		h, err := client.Health(ctx)
		return err == nil && !h.Indexing
	}, 3*time.Second, 20*time.Millisecond, "initial sync should finish")

	resp, err := client.Search(ctx, SearchRequest{Query: "add", Limit: 5})
	require.NoError(t, err)
	require.NotNil(t, resp.Search)
}

func TestDaemon_Shutdown(t *testing.T) {
	root := t.TempDir()
	d := newTestDaemon(t, root, "repo3")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(d.cfg.SocketPath("repo3"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	client := NewClient(d.cfg, root, "repo3")
	ok, err := client.Shutdown(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after shutdown")
	}
}

func TestConfig_SocketPath(t *testing.T) {
	cfg := Config{DataDir: "/tmp/smgrep-test"}
	assert.Equal(t, fmt.Sprintf("/tmp/smgrep-test/socks/%s.sock", "abc"), cfg.SocketPath("abc"))
}
