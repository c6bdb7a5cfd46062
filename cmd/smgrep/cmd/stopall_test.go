package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/can1357/smgrep/internal/daemon"
)

func TestStopAllCmd_NoServers(t *testing.T) {
	// Given: no socks directory at all
	dataDir := t.TempDir()
	t.Setenv("RSGREP_DATA_DIR", dataDir)

	// When: running stop-all
	cmd := newStopAllCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	require.NoError(t, cmd.Execute())

	// Then: reports no servers running
	assert.Contains(t, buf.String(), "No servers running")
}

func TestStopAllCmd_MixedStaleAndRunning(t *testing.T) {
	// Given: one stale socket and one live daemon
	dataDir := t.TempDir()
	t.Setenv("RSGREP_DATA_DIR", dataDir)

	cfg := daemon.Config{DataDir: dataDir, Timeout: 5 * time.Second, ShutdownGracePeriod: time.Second}
	require.NoError(t, cfg.EnsureSocksDir())
	require.NoError(t, os.WriteFile(cfg.SocketPath("stale2"), []byte{}, 0o644))

	root := t.TempDir()
	d := newStatusTestDaemon(t, cfg, root, "repo4")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SocketPath("repo4"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	// When: running stop-all
	cmd := newStopAllCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	require.NoError(t, cmd.Execute())

	// Then: both sockets are accounted for as stopped, none failed
	assert.Contains(t, buf.String(), "Stopped 2 servers, 0 failed")
}
