/*
Package main is the entry point for the tool-finder-mcp CLI.

tool-finder-mcp fronts a set of MCP servers with two meta-tools. Clients
describe the capabilities they need and receive ranked tools; tools a session
has already seen come back as name and fingerprint only.

Usage:

	tool-finder-mcp [command]

Examples:

	# Create a config, then index the configured servers
	tool-finder-mcp init
	tool-finder-mcp index

	# Run as MCP server
	tool-finder-mcp serve

	# Try a query from the shell
	tool-finder-mcp recommend "create a calendar event"
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/tool-finder-mcp/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
