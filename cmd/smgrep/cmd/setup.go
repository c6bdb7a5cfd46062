package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/index"
)

// newSetupCmd builds the `setup` command: a one-shot, synchronous index
// build (SPEC_FULL §4.4 initial_sync), distinct from serve's background and
// periodic sync. Useful for pre-warming an index before the first search.
func newSetupCmd() *cobra.Command {
	var (
		path   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Build or refresh a repository's index",
		RunE: func(cmd *cobra.Command, args []string) error {
			root := path
			if root == "" {
				var err error
				root, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve working directory: %w", err)
				}
			}

			ctx := cmd.Context()
			stack, err := buildRepoStack(ctx, root)
			if err != nil {
				return fmt.Errorf("build repository stack: %w", err)
			}
			defer stack.store.Close()

			out := cmd.OutOrStdout()
			result, err := stack.syncEngine.InitialSync(ctx, dryRun, func(p index.SyncProgress) {
				fmt.Fprintf(out, "\rindexing %d/%d: %s", p.Processed, p.Total, p.CurrentFile)
			})
			if err != nil {
				return fmt.Errorf("initial sync: %w", err)
			}
			fmt.Fprintln(out)

			if !dryRun {
				if err := stack.store.Save(stack.dataPath()); err != nil {
					return fmt.Errorf("persist store: %w", err)
				}
			}

			fmt.Fprintf(out, "processed=%d indexed=%d skipped=%d deleted=%d\n",
				result.Processed, result.Indexed, result.Skipped, result.Deleted)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Repository root to index (default: current directory)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	return cmd
}
