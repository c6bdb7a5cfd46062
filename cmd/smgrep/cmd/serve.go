package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/daemon"
)

// newServeCmd builds the `serve` command: it foreground-runs one repository's
// daemon, listening on its per-repo Unix socket until SIGINT/SIGTERM or a
// Shutdown request arrives (SPEC_FULL §4.8). This is also what daemon.Client
// autospawns when a search finds no running daemon.
func newServeCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search daemon for one repository in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := path
			if root == "" {
				var err error
				root, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			stack, err := buildRepoStack(ctx, root)
			if err != nil {
				return fmt.Errorf("build repository stack: %w", err)
			}

			d, err := daemon.NewDaemon(stack.daemonCfg, root, stack.storeID, stack.store, stack.engine, stack.syncEngine)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}

			slog.Info("starting daemon", slog.String("root", root), slog.String("store_id", stack.storeID))

			if err := d.Start(ctx); err != nil && err != context.Canceled {
				return fmt.Errorf("daemon exited: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Repository root to serve (default: current directory)")
	return cmd
}
