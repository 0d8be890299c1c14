package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
)

// ServerEntry is one server in the JSON listing.
type ServerEntry struct {
	Name        string   `json:"name"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	Description string   `json:"description,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	Groups      []string `json:"groups,omitempty"`
	Tools       *int     `json:"tools,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// NewListCmd creates the 'list' command for listing configured MCP servers.
func NewListCmd(opts *Options) *cobra.Command {
	var jsonOutput bool
	var showStatus bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured MCP servers and groups",
		Long:    `Display the MCP servers and groups configured in ~/.tool-finder-mcp.json`,
		Example: `  tool-finder-mcp list
  tool-finder-mcp ls
  tool-finder-mcp list --status  # start servers and show tool counts
  tool-finder-mcp list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, jsonOutput, showStatus)
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVarP(&showStatus, "status", "s", false, "Start servers and show tool counts")

	return cmd
}

func runList(cmd *cobra.Command, opts *Options, jsonOutput, showStatus bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	entries := serverEntries(cfg)
	if showStatus {
		logger, err := opts.logger()
		if err != nil {
			return err
		}
		pool := spawner.NewPool(cfg.Servers, cfg.Settings.ProcessPoolSize,
			spawner.WithLogger(logger),
			spawner.WithTimeout(cfg.Settings.Timeout()))
		defer pool.Close()

		for i := range entries {
			if entries[i].Disabled {
				continue
			}
			tools, err := pool.ServerTools(cmd.Context(), entries[i].Name)
			if err != nil {
				entries[i].Error = err.Error()
				continue
			}
			n := len(tools)
			entries[i].Tools = &n
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, struct {
			Servers []ServerEntry       `json:"servers"`
			Groups  map[string][]string `json:"groups,omitempty"`
		}{entries, cfg.Groups})
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No servers configured.")
		fmt.Fprintln(out, "Add servers to the config file, see 'tool-finder-mcp init'.")
		return nil
	}

	fmt.Fprintf(out, "Configured MCP Servers (%d):\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s", e.Name)
		if e.Disabled {
			fmt.Fprint(out, " (disabled)")
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "    Command: %s %s\n", e.Command, strings.Join(e.Args, " "))
		if e.Description != "" {
			fmt.Fprintf(out, "    About:   %s\n", e.Description)
		}
		if len(e.Groups) > 0 {
			fmt.Fprintf(out, "    Groups:  %s\n", strings.Join(e.Groups, ", "))
		}
		switch {
		case e.Error != "":
			fmt.Fprintf(out, "    Status:  ✗ %s\n", e.Error)
		case e.Tools != nil:
			fmt.Fprintf(out, "    Status:  ✓ %d tools\n", *e.Tools)
		}
		fmt.Fprintln(out)
	}

	if len(cfg.Groups) > 0 {
		groups := make([]string, 0, len(cfg.Groups))
		for g := range cfg.Groups {
			groups = append(groups, g)
		}
		sort.Strings(groups)

		fmt.Fprintf(out, "Groups (%d):\n", len(groups))
		for _, g := range groups {
			fmt.Fprintf(out, "  %s: %s\n", g, strings.Join(cfg.Groups[g], ", "))
		}
	}
	return nil
}

// serverEntries returns every configured server sorted by name.
func serverEntries(cfg *config.Config) []ServerEntry {
	memberOf := make(map[string][]string)
	for g, members := range cfg.Groups {
		for _, m := range members {
			memberOf[m] = append(memberOf[m], g)
		}
	}

	entries := make([]ServerEntry, 0, len(cfg.Servers))
	for name, s := range cfg.Servers {
		if s == nil {
			continue
		}
		groups := memberOf[name]
		sort.Strings(groups)
		entries = append(entries, ServerEntry{
			Name:        name,
			Command:     s.Command,
			Args:        s.Args,
			Description: s.Description,
			Disabled:    s.Disabled,
			Groups:      groups,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
