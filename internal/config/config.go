/*
Package config handles loading and saving tool-finder-mcp configuration.

Configuration is stored in ~/.tool-finder-mcp.json:

	{
	  "servers": {
	    "gmail": {
	      "command": "npx",
	      "args": ["-y", "@example/gmail-mcp"],
	      "env": {"TOKEN": "..."}
	    }
	  },
	  "groups": {
	    "communication": ["gmail", "slack"]
	  },
	  "settings": {
	    "topK": 5,
	    "minSimilarity": 0.1,
	    "embedding": {"backend": "openai", "baseUrl": "http://localhost:11434", "model": "nomic-embed-text", "dimension": 768}
	  }
	}

Every setting has a default and can be overridden through TOOL_FINDER_*
environment variables (see ApplyOverrides).
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"
)

// Config represents the root configuration structure.
type Config struct {
	// Servers maps server names to their configurations.
	Servers map[string]*ServerConfig `json:"servers"`

	// Groups maps a group name to the server names it contains.
	Groups map[string][]string `json:"groups,omitempty"`

	// Settings contains global configuration options.
	Settings *Settings `json:"settings,omitempty"`
}

// ServerConfig represents a single child MCP server.
type ServerConfig struct {
	// Command is the executable to run (e.g., "npx", "/path/to/binary").
	Command string `json:"command"`

	// Args are the command-line arguments.
	Args []string `json:"args,omitempty"`

	// Env contains environment variables for the server.
	Env map[string]string `json:"env,omitempty"`

	// Description is a human-readable description of the server.
	Description string `json:"description,omitempty"`

	// Disabled excludes the server from indexing and execution.
	Disabled bool `json:"disabled,omitempty"`
}

// Settings contains global configuration options.
type Settings struct {
	// DatabasePath is the SQLite index location. Empty means ~/.tool-finder-mcp/index.db.
	DatabasePath string `json:"databasePath,omitempty"`

	// TopK is the default number of tools returned per description.
	TopK int `json:"topK,omitempty"`

	// MinSimilarity is the default similarity floor for recommendations.
	MinSimilarity float64 `json:"minSimilarity,omitempty"`

	// DuplicateThreshold is the similarity at which a new tool evicts an indexed one.
	DuplicateThreshold float64 `json:"duplicateThreshold,omitempty"`

	// CandidateFloor is the similarity floor of the near-duplicate search.
	CandidateFloor float64 `json:"candidateFloor,omitempty"`

	// CandidateLimit is how many neighbours the near-duplicate search inspects.
	CandidateLimit int `json:"candidateLimit,omitempty"`

	// IndexWorkers is the embedding worker count during indexing.
	IndexWorkers int `json:"indexWorkers,omitempty"`

	// SessionIDLength is the length of generated session ids.
	SessionIDLength int `json:"sessionIdLength,omitempty"`

	// ProcessPoolSize is the max number of concurrent MCP server processes.
	ProcessPoolSize int `json:"processPoolSize,omitempty"`

	// TimeoutSeconds is the default timeout for MCP operations.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`

	// HistoryRetentionDays bounds how long search history is kept.
	HistoryRetentionDays int `json:"historyRetentionDays,omitempty"`

	// Embedding selects the embedding provider.
	Embedding *EmbeddingSettings `json:"embedding,omitempty"`
}

// EmbeddingSettings configures the embedding provider.
type EmbeddingSettings struct {
	// Backend is "openai" or "placeholder".
	Backend string `json:"backend,omitempty"`

	// BaseURL is the root of an OpenAI-compatible API.
	BaseURL string `json:"baseUrl,omitempty"`

	// Model is the embedding model name.
	Model string `json:"model,omitempty"`

	// Dimension is the vector length the model produces.
	Dimension int `json:"dimension,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"apiKeyEnv,omitempty"`

	// CacheSize bounds the in-memory query embedding cache. Zero disables it.
	CacheSize int `json:"cacheSize,omitempty"`
}

// Default values.
const (
	DefaultTopK                 = 5
	DefaultMinSimilarity        = 0.1
	DefaultDuplicateThreshold   = 0.96
	DefaultCandidateFloor       = 0.7
	DefaultCandidateLimit       = 10
	DefaultIndexWorkers         = 4
	DefaultSessionIDLength      = 6
	DefaultProcessPoolSize      = 3
	DefaultTimeoutSeconds       = 30
	DefaultHistoryRetentionDays = 30
	DefaultEmbeddingDimension   = 384
	DefaultEmbeddingCacheSize   = 256
)

// NewConfig creates a new empty configuration with default settings.
func NewConfig() *Config {
	cfg := &Config{
		Servers: make(map[string]*ServerConfig),
		Groups:  make(map[string][]string),
	}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultSettings returns settings with every default filled in.
func DefaultSettings() *Settings {
	return &Settings{
		TopK:                 DefaultTopK,
		MinSimilarity:        DefaultMinSimilarity,
		DuplicateThreshold:   DefaultDuplicateThreshold,
		CandidateFloor:       DefaultCandidateFloor,
		CandidateLimit:       DefaultCandidateLimit,
		IndexWorkers:         DefaultIndexWorkers,
		SessionIDLength:      DefaultSessionIDLength,
		ProcessPoolSize:      DefaultProcessPoolSize,
		TimeoutSeconds:       DefaultTimeoutSeconds,
		HistoryRetentionDays: DefaultHistoryRetentionDays,
		Embedding: &EmbeddingSettings{
			Backend:   "placeholder",
			Model:     "placeholder",
			Dimension: DefaultEmbeddingDimension,
			CacheSize: DefaultEmbeddingCacheSize,
		},
	}
}

// ApplyDefaults fills zero-valued settings with defaults and initializes maps.
func (c *Config) ApplyDefaults() {
	if c.Servers == nil {
		c.Servers = make(map[string]*ServerConfig)
	}
	if c.Groups == nil {
		c.Groups = make(map[string][]string)
	}

	def := DefaultSettings()
	if c.Settings == nil {
		c.Settings = def
		return
	}

	s := c.Settings
	setInt(&s.TopK, def.TopK)
	setFloat(&s.MinSimilarity, def.MinSimilarity)
	setFloat(&s.DuplicateThreshold, def.DuplicateThreshold)
	setFloat(&s.CandidateFloor, def.CandidateFloor)
	setInt(&s.CandidateLimit, def.CandidateLimit)
	setInt(&s.IndexWorkers, def.IndexWorkers)
	setInt(&s.SessionIDLength, def.SessionIDLength)
	setInt(&s.ProcessPoolSize, def.ProcessPoolSize)
	setInt(&s.TimeoutSeconds, def.TimeoutSeconds)
	setInt(&s.HistoryRetentionDays, def.HistoryRetentionDays)

	if s.Embedding == nil {
		s.Embedding = def.Embedding
		return
	}
	if s.Embedding.Backend == "" {
		s.Embedding.Backend = def.Embedding.Backend
	}
	if s.Embedding.Model == "" {
		s.Embedding.Model = def.Embedding.Model
	}
	setInt(&s.Embedding.Dimension, def.Embedding.Dimension)
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}

// Timeout returns the MCP operation timeout.
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// HistoryRetention returns the search history retention period.
func (s *Settings) HistoryRetention() time.Duration {
	return time.Duration(s.HistoryRetentionDays) * 24 * time.Hour
}

// EnabledServers returns the names of servers that are not disabled, sorted.
func (c *Config) EnabledServers() []string {
	names := make([]string, 0, len(c.Servers))
	for name, srv := range c.Servers {
		if srv != nil && !srv.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ServerNamesForGroups returns the sorted union of servers in the named
// groups. Unknown groups contribute nothing.
func (c *Config) ServerNamesForGroups(groups []string) []string {
	seen := map[string]struct{}{}
	for _, g := range groups {
		for _, name := range c.Groups[g] {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetDefaultConfigPath returns the path to ~/.tool-finder-mcp.json
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tool-finder-mcp.json"), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}
