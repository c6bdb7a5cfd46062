package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeCmd_StartStop(t *testing.T) {
	// Given: a repo directory and a dedicated data dir
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\nfunc A() {}\n"), 0o644))

	t.Setenv("RSGREP_EMBEDDER", "static")
	t.Setenv("RSGREP_DATA_DIR", t.TempDir())

	// When: running serve, cancelling once its socket appears
	cmd := newServeCmd()
	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)
	cmd.SetArgs([]string{"--path", root})

	errCh := make(chan error, 1)
	go func() { errCh <- cmd.Execute() }()

	socksDir := filepath.Join(os.Getenv("RSGREP_DATA_DIR"), "socks")
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(socksDir)
		return err == nil && len(entries) > 0
	}, 5*time.Second, 50*time.Millisecond, "daemon never opened its socket")

	cancel()

	// Then: serve returns once its context is cancelled
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after context cancellation")
	}
}
