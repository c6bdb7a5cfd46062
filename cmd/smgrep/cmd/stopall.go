package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/daemon"
)

// newStopAllCmd builds the `stop-all` command: it shuts down every running
// daemon, grounded on original_source's commands/stop_all.rs.
func newStopAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := daemonConfig()
			out := cmd.OutOrStdout()

			socks, err := listSockets(cfg)
			if err != nil {
				return err
			}
			if len(socks) == 0 {
				fmt.Fprintln(out, "No servers running")
				return nil
			}

			var stopped, failed int
			for _, storeID := range socks {
				client := daemon.NewClient(cfg, "", storeID)
				if !client.IsRunning() {
					_ = os.Remove(cfg.SocketPath(storeID))
					stopped++
					continue
				}

				ok, err := client.Shutdown(cmd.Context())
				if err != nil || ok {
					stopped++
				} else {
					failed++
				}
			}

			fmt.Fprintf(out, "Stopped %d servers, %d failed\n", stopped, failed)
			return nil
		},
	}
	return cmd
}
