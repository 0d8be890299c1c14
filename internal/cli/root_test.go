package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

// testEnv isolates a command run in a temporary home directory.
type testEnv struct {
	dir    string
	config string
	db     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return &testEnv{
		dir:    dir,
		config: filepath.Join(dir, "config.json"),
		db:     filepath.Join(dir, "data", "index.db"),
	}
}

func (e *testEnv) writeConfig(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.config, []byte(body), 0600))
}

// run executes the root command with the environment's config and database.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--config", e.config, "--db", e.db))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// store opens the environment's database for seeding.
func (e *testEnv) store(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	require.NoError(t, ensureDir(e.db))
	s := storage.New(e.db)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "index", "recommend", "sessions", "maintenance", "export-index", "list", "verify", "init", "version"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "debug", "db"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestLoadConfigResolvesDatabasePath(t *testing.T) {
	env := newTestEnv(t)

	opts := &Options{ConfigPath: env.config, viper: config.NewViper()}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.dir, ".tool-finder-mcp", "index.db"), cfg.Settings.DatabasePath)
	assert.Equal(t, config.DefaultTopK, cfg.Settings.TopK)

	opts.viper.Set(config.KeyDatabasePath, env.db)
	cfg, err = opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, env.db, cfg.Settings.DatabasePath)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(t, `{"servers": {}, "settings": {"topK": 3}}`)
	t.Setenv("TOOL_FINDER_TOP_K", "9")

	opts := &Options{ConfigPath: env.config, viper: config.NewViper()}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Settings.TopK)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	env := newTestEnv(t)
	env.writeConfig(t, `{"servers": `)

	_, err := env.run(t, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON parse error")
}

func TestServeHelp(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "stdio")
	assert.Contains(t, out, "retrieve_tools")
	assert.Contains(t, out, "execute_tool")
}
