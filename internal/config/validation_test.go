/*
Package config provides unit tests for validation functions.
*/
package config

import (
	"strings"
	"testing"
)

func TestIsSelfReference(t *testing.T) {
	tests := []struct {
		name     string
		server   *ServerConfig
		expected bool
	}{
		{
			name:     "Direct binary name match",
			server:   &ServerConfig{Command: "tool-finder-mcp"},
			expected: true,
		},
		{
			name:     "npx with tool-finder-mcp package",
			server:   &ServerConfig{Command: "npx", Args: []string{"-y", "@khanglvm/tool-finder-mcp", "serve"}},
			expected: true,
		},
		{
			name:     "npx with different package",
			server:   &ServerConfig{Command: "npx", Args: []string{"-y", "@lvmk/jira-mcp"}},
			expected: false,
		},
		{
			name:     "Different binary",
			server:   &ServerConfig{Command: "/usr/local/bin/other-mcp"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSelfReference(tt.server); got != tt.expected {
				t.Errorf("IsSelfReference() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name       string
		serverName string
		server     *ServerConfig
		errMsg     string
	}{
		{"valid", "jira", &ServerConfig{Command: "npx", Args: []string{"jira-mcp"}}, ""},
		{"empty command", "jira", &ServerConfig{}, "empty command"},
		{"nil server", "jira", nil, "empty definition"},
		{"separator in name", "my__server", &ServerConfig{Command: "node"}, "must not contain"},
		{"self reference", "me", &ServerConfig{Command: "tool-finder-mcp"}, "self-reference"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServer(tt.serverName, tt.server)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewConfig()
	cfg.Servers["ok"] = &ServerConfig{Command: "node"}
	cfg.Servers["bad"] = &ServerConfig{}
	cfg.Groups["empty"] = nil
	cfg.Settings.MinSimilarity = 2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"server 'bad'", "group 'empty'", "minSimilarity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestGroupWarnings(t *testing.T) {
	cfg := NewConfig()
	cfg.Servers["gmail"] = &ServerConfig{Command: "node"}
	cfg.Groups["comms"] = []string{"gmail", "slack"}

	warnings := cfg.GroupWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "slack") {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}
