package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/recommend"
)

// NewRecommendCmd creates the 'recommend' command for ad-hoc queries.
func NewRecommendCmd(opts *Options) *cobra.Command {
	var (
		ropts      recommend.Options
		sync       bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "recommend <description>",
		Short: "Find tools for a capability description",
		Long: `Rank the indexed tools against a natural-language description, the way
retrieve_tools does, without recording anything in a session.`,
		Example: `  tool-finder-mcp recommend "send an email"
  tool-finder-mcp recommend "create a ticket" --server jira --top-k 3
  tool-finder-mcp recommend "post a message" --group communication --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecommend(cmd, opts, strings.Join(args, " "), ropts, sync, jsonOutput)
		},
	}

	cmd.Flags().IntVarP(&ropts.TopK, "top-k", "k", 0, "Maximum number of tools (default from settings)")
	cmd.Flags().Float64Var(&ropts.MinSimilarity, "min-similarity", 0, "Similarity floor, 0 means the configured default, -1 disables it")
	cmd.Flags().StringSliceVar(&ropts.ServerNames, "server", nil, "Only consider these servers")
	cmd.Flags().StringSliceVar(&ropts.GroupNames, "group", nil, "Only consider servers in these groups")
	cmd.Flags().BoolVar(&sync, "sync", false, "Index new tools before querying")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runRecommend(cmd *cobra.Command, opts *Options, query string, ropts recommend.Options, sync, jsonOutput bool) error {
	a, err := opts.openHub(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if sync {
		if _, err := a.hub.Sync(ctx); err != nil {
			return err
		}
	}

	results, err := a.hub.Recommend(ctx, query, ropts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No matching tools.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%2d. %-40s %.3f\n", r.Rank, r.Name, r.Similarity)
		if r.Description != "" {
			fmt.Fprintf(out, "    %s\n", r.Description)
		}
		fmt.Fprintf(out, "    fingerprint: %s\n", r.Fingerprint)
	}
	return nil
}
