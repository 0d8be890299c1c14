package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanglvm/tool-finder-mcp/internal/spawner"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// ToolEntry is one tool in the exported index.
type ToolEntry struct {
	Name        string    `json:"name"`
	Server      string    `json:"server"`
	Tool        string    `json:"tool"`
	Fingerprint string    `json:"fingerprint"`
	Description string    `json:"description"`
	Model       string    `json:"model"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewExportIndexCmd creates the export-index command.
func NewExportIndexCmd(opts *Options) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export-index",
		Short: "Export the tool index for grep/jq search",
		Long: `Write every indexed tool of the configured embedding model to a file for
offline grep/jq searching. Run 'tool-finder-mcp index' first to refresh it.

Default output: ~/.tool-finder-mcp-index.jsonl
Default format: JSONL (one tool per line)`,
		Example: `  # Export to default location
  tool-finder-mcp export-index

  # Export as JSON array
  tool-finder-mcp export-index --format json

  # Custom output path
  tool-finder-mcp export-index --output ./tools.jsonl

Grep usage examples:
  # Find Jira tools
  grep '"jira"' ~/.tool-finder-mcp-index.jsonl

  # Look up a tool by fingerprint
  grep '"fingerprint":"3f2a' ~/.tool-finder-mcp-index.jsonl | jq -r '.name'

  # Count tools per server
  jq -r '.server' ~/.tool-finder-mcp-index.jsonl | sort | uniq -c`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportIndex(cmd, opts, format, output)
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format: json or jsonl")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: ~/.tool-finder-mcp-index.jsonl)")

	return cmd
}

func runExportIndex(cmd *cobra.Command, opts *Options, format, output string) error {
	if format != "json" && format != "jsonl" {
		return fmt.Errorf("unknown format %q (want json or jsonl)", format)
	}

	if output == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		output = filepath.Join(home, ".tool-finder-mcp-index."+format)
	}

	unlock, err := lockFile(output, "export")
	if err != nil {
		return err
	}
	defer unlock()

	a, err := opts.openHub(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	tools, err := a.hub.Store().ListTools(cmd.Context(), a.hub.Model())
	if err != nil {
		return err
	}

	entries := make([]ToolEntry, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, toEntry(t))
	}

	if err := writeIndex(entries, output, format); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d tools to %s\n", len(entries), output)
	return nil
}

func toEntry(t storage.ToolDescriptor) ToolEntry {
	server, tool, _ := spawner.SplitQualifiedName(t.Name)
	return ToolEntry{
		Name:        t.Name,
		Server:      server,
		Tool:        tool,
		Fingerprint: t.Fingerprint,
		Description: t.Description,
		Model:       t.Model,
		UpdatedAt:   t.UpdatedAt,
	}
}

// writeIndex writes the tool index to a file.
func writeIndex(tools []ToolEntry, path, format string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)

	if format == "json" {
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(tools); err != nil {
			return fmt.Errorf("failed to encode tools: %w", err)
		}
		return nil
	}

	for _, tool := range tools {
		if err := encoder.Encode(tool); err != nil {
			return fmt.Errorf("failed to encode tool: %w", err)
		}
	}
	return nil
}
