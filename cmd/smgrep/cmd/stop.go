package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/config"
	"github.com/can1357/smgrep/internal/daemon"
)

// newStopCmd builds the `stop` command: it asks one repository's daemon to
// shut down, grounded on original_source's commands/stop.rs.
func newStopCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon for one repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := path
			if root == "" {
				var err error
				root, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
			}

			storeID, err := config.ResolveStoreID(root)
			if err != nil {
				return fmt.Errorf("resolve store id: %w", err)
			}

			cfg := daemonConfig()
			socketPath := cfg.SocketPath(storeID)
			out := cmd.OutOrStdout()

			if _, err := os.Stat(socketPath); err != nil {
				fmt.Fprintln(out, "No server running for this project")
				return nil
			}

			client := daemon.NewClient(cfg, root, storeID)
			if !client.IsRunning() {
				_ = os.Remove(socketPath)
				fmt.Fprintln(out, "Removed stale socket")
				return nil
			}

			ok, err := client.Shutdown(cmd.Context())
			if err != nil || !ok {
				fmt.Fprintln(out, "Unexpected response from server")
				return nil
			}
			fmt.Fprintln(out, "Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Repository root whose daemon to stop (default: current directory)")
	return cmd
}
