package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/can1357/smgrep/internal/chunk"
	"github.com/can1357/smgrep/internal/daemon"
	"github.com/can1357/smgrep/internal/embed"
	"github.com/can1357/smgrep/internal/index"
	"github.com/can1357/smgrep/internal/search"
	"github.com/can1357/smgrep/internal/store"
)

func TestRunStatus_NoServers(t *testing.T) {
	// Given: a data dir with no socks directory yet
	cfg := daemon.Config{DataDir: t.TempDir(), Timeout: 5 * time.Second, ShutdownGracePeriod: time.Second}
	t.Setenv("RSGREP_DATA_DIR", cfg.DataDir)

	// When: running status
	buf := &bytes.Buffer{}
	require.NoError(t, runStatus(context.Background(), buf))

	// Then: reports no servers
	assert.Contains(t, buf.String(), "No servers running")
}

func TestRunStatus_StaleSocket(t *testing.T) {
	// Given: a socks dir with a socket file nothing is listening on
	cfg := daemon.Config{DataDir: t.TempDir(), Timeout: 5 * time.Second, ShutdownGracePeriod: time.Second}
	t.Setenv("RSGREP_DATA_DIR", cfg.DataDir)
	require.NoError(t, cfg.EnsureSocksDir())
	require.NoError(t, os.WriteFile(cfg.SocketPath("stale1"), []byte{}, 0o644))

	// When: listing sockets
	ids, err := listSockets(cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"stale1"}, ids)

	// When: running status
	buf := &bytes.Buffer{}
	require.NoError(t, runStatus(context.Background(), buf))

	// Then: reports it as stale and removes the socket file
	assert.Contains(t, buf.String(), "stale1 (stale)")
	_, statErr := os.Stat(cfg.SocketPath("stale1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunStatus_RunningDaemon(t *testing.T) {
	// Given: a live daemon serving one repo
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))

	cfg := daemon.Config{DataDir: t.TempDir(), Timeout: 5 * time.Second, ShutdownGracePeriod: time.Second}
	t.Setenv("RSGREP_DATA_DIR", cfg.DataDir)
	d := newStatusTestDaemon(t, cfg, root, "repo1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SocketPath("repo1"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	client := daemon.NewClient(cfg, root, "repo1")
	require.Eventually(t, client.IsRunning, 2*time.Second, 20*time.Millisecond)

	// When: running status
	buf := &bytes.Buffer{}
	require.NoError(t, runStatus(ctx, buf))

	// Then: the repo shows up as ready or indexing, never stale
	out := buf.String()
	assert.Contains(t, out, "repo1")
	assert.NotContains(t, out, "stale")
}

func newStatusTestDaemon(t *testing.T, cfg daemon.Config, root, storeID string) *daemon.Daemon {
	t.Helper()
	vecs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embed.StaticDimensions))
	require.NoError(t, err)
	text, err := store.NewSQLiteBM25Index("", store.DefaultBM25Config())
	require.NoError(t, err)
	repoStore := store.NewRepoStore(vecs, text, "static", embed.StaticDimensions)

	embedder := embed.NewStaticEmbedder()
	syncEngine := index.NewSyncEngine(root, cfg.DataDir, storeID, chunk.NewCodeChunker(), embedder, repoStore, 8)
	engine := search.NewEngine(repoStore, embedder)

	d, err := daemon.NewDaemon(cfg, root, storeID, repoStore, engine, syncEngine)
	require.NoError(t, err)
	return d
}
