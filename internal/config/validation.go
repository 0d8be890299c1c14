/*
Package config provides validation helpers for MCP server configurations.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NameSeparator joins a server name and a tool name into a qualified tool name.
// Server names may not contain it.
const NameSeparator = "__"

// IsSelfReference checks if a server config refers to tool-finder-mcp itself.
// This prevents circular references where tool-finder-mcp tries to spawn itself.
func IsSelfReference(server *ServerConfig) bool {
	binaryName := filepath.Base(os.Args[0])
	if server.Command == binaryName || server.Command == "tool-finder-mcp" {
		return true
	}

	if server.Command == "npx" {
		for _, arg := range server.Args {
			if arg == "@khanglvm/tool-finder-mcp" || arg == "tool-finder-mcp" {
				return true
			}
		}
	}

	return false
}

// ValidateServer checks a single server config.
func ValidateServer(name string, server *ServerConfig) error {
	if server == nil {
		return fmt.Errorf("server '%s': empty definition", name)
	}

	if strings.TrimSpace(name) == "" {
		return errors.New("server name is empty")
	}

	if strings.Contains(name, NameSeparator) {
		return fmt.Errorf("server '%s': name must not contain %q", name, NameSeparator)
	}

	if server.Command == "" {
		return fmt.Errorf("server '%s': empty command", name)
	}

	if IsSelfReference(server) {
		return fmt.Errorf("server '%s': self-reference detected (tool-finder-mcp cannot spawn itself)", name)
	}

	return nil
}

// Validate checks every server, group and setting and joins the problems.
func (c *Config) Validate() error {
	var errs []error

	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ValidateServer(name, c.Servers[name]); err != nil {
			errs = append(errs, err)
		}
	}

	for group, members := range c.Groups {
		if len(members) == 0 {
			errs = append(errs, fmt.Errorf("group '%s': no servers", group))
		}
	}

	if s := c.Settings; s != nil {
		if s.MinSimilarity < -1 || s.MinSimilarity > 1 {
			errs = append(errs, fmt.Errorf("minSimilarity %v outside [-1, 1]", s.MinSimilarity))
		}
		if s.DuplicateThreshold < 0 || s.DuplicateThreshold > 1 {
			errs = append(errs, fmt.Errorf("duplicateThreshold %v outside [0, 1]", s.DuplicateThreshold))
		}
		if s.CandidateFloor > s.DuplicateThreshold && s.DuplicateThreshold > 0 {
			errs = append(errs, fmt.Errorf("candidateFloor %v above duplicateThreshold %v", s.CandidateFloor, s.DuplicateThreshold))
		}
	}

	return errors.Join(errs...)
}

// GroupWarnings lists group members that are not configured servers.
func (c *Config) GroupWarnings() []string {
	var warnings []string
	for group, members := range c.Groups {
		for _, m := range members {
			if _, ok := c.Servers[m]; !ok {
				warnings = append(warnings, fmt.Sprintf("group '%s' references unknown server '%s'", group, m))
			}
		}
	}
	sort.Strings(warnings)
	return warnings
}
