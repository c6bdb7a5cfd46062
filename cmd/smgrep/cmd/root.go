// Package cmd provides the CLI commands for smgrep.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/logging"
	"github.com/can1357/smgrep/pkg/version"
)

// Debug logging flag, shared by every subcommand via the root's persistent flags.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the smgrep CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smgrep",
		Short: "Local-first hybrid code search daemon",
		Long: `smgrep indexes a codebase with hybrid BM25 + semantic search and serves
queries from a per-repository background daemon, entirely locally.

Run 'smgrep setup' once to build the initial index, then 'smgrep search
<query>' to search it. The daemon autospawns on first search if it isn't
already running.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("smgrep version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.smgrep/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStopAllCmd())
	cmd.AddCommand(newSetupCmd())

	return cmd
}

// startLogging enables debug file logging if --debug was passed.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
