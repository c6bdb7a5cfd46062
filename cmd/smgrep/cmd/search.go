package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/can1357/smgrep/internal/config"
	"github.com/can1357/smgrep/internal/daemon"
	"github.com/can1357/smgrep/internal/store"
)

// searchResultJSON is the client-mode JSON output schema (SPEC_FULL §6).
type searchResultJSON struct {
	Path      string          `json:"path"`
	Score     float32         `json:"score"`
	Content   string          `json:"content"`
	ChunkType store.ChunkType `json:"chunk_type,omitempty"`
	StartLine int             `json:"start_line,omitempty"`
	EndLine   int             `json:"end_line,omitempty"`
	IsAnchor  bool            `json:"is_anchor,omitempty"`
}

type searchOutput struct {
	Results []searchResultJSON `json:"results"`
}

// newSearchCmd builds the `search` command: it autospawns the repository's
// daemon if needed, sends one Search request, and prints JSON results.
func newSearchCmd() *cobra.Command {
	var (
		path         string
		limit        int
		perFileLimit int
		pathFilter   string
		rerank       bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a repository's index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]

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

			ctx := cmd.Context()
			client := daemon.NewClient(daemonConfig(), root, storeID)
			if err := client.EnsureRunning(ctx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			resp, err := client.Search(ctx, daemon.SearchRequest{
				Query:        query,
				Limit:        limit,
				PerFileLimit: perFileLimit,
				Path:         pathFilter,
				Rerank:       rerank,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			out := searchOutput{Results: make([]searchResultJSON, 0, len(resp.Search.Results))}
			for _, r := range resp.Search.Results {
				out.Results = append(out.Results, searchResultJSON{
					Path:      r.Path,
					Score:     r.Score,
					Content:   r.Content,
					ChunkType: r.ChunkType,
					StartLine: r.StartLine,
					EndLine:   r.StartLine + r.NumLines,
					IsAnchor:  r.IsAnchor,
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Repository root to search (default: current directory)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().IntVar(&perFileLimit, "per-file-limit", 0, "Maximum results per file (0 = unlimited)")
	cmd.Flags().StringVar(&pathFilter, "path-filter", "", "Restrict results to paths matching this substring")
	cmd.Flags().BoolVar(&rerank, "rerank", !fastModeDefault(), "Apply ColBERT MaxSim reranking")
	return cmd
}

// fastModeDefault reports RSGREP_FAST (SPEC_FULL §6): when set, search skips
// the expensive ColBERT rerank pass unless --rerank is explicitly given.
func fastModeDefault() bool {
	v := strings.ToLower(os.Getenv("RSGREP_FAST"))
	return v == "true" || v == "1"
}
