package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/daemon"
)

// newStatusCmd builds the `status` command: it lists every repository socket
// under the data dir and probes each daemon's health, grounded on
// original_source's commands/status.rs.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List running daemons and their indexing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func runStatus(ctx context.Context, out io.Writer) error {
	cfg := daemonConfig()
	socks, err := listSockets(cfg)
	if err != nil {
		return err
	}

	if len(socks) == 0 {
		fmt.Fprintln(out, "No servers running")
		return nil
	}

	fmt.Fprintln(out, "Running servers:")
	for _, storeID := range socks {
		client := daemon.NewClient(cfg, "", storeID)
		if !client.IsRunning() {
			fmt.Fprintf(out, "  %s (stale)\n", storeID)
			_ = os.Remove(cfg.SocketPath(storeID))
			continue
		}

		health, err := client.Health(ctx)
		if err != nil {
			fmt.Fprintf(out, "  %s (unresponsive)\n", storeID)
			continue
		}

		state := "ready"
		if health.Indexing {
			state = fmt.Sprintf("indexing %d%%", health.Progress)
		}
		fmt.Fprintf(out, "  %s (%s)\n", storeID, state)
	}
	return nil
}

// listSockets returns the store ids with a socket file under cfg's socks dir.
func listSockets(cfg daemon.Config) ([]string, error) {
	entries, err := os.ReadDir(cfg.SocksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sockets: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sock" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".sock"))
	}
	return ids, nil
}
