/*
Package spawner manages the child MCP servers whose tools are indexed and
executed.

The pool keeps one MCP client session per server and handles:
  - Lazy spawning (a server starts the first time its tools are needed)
  - Tool discovery, with per-server caching until Refresh
  - Tool execution by provider-qualified name
  - An upper bound on live processes, closing the least recently used idle one
  - Graceful shutdown
*/
package spawner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/config"
	"github.com/khanglvm/tool-finder-mcp/internal/fingerprint"
	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/version"
)

// DefaultTimeout bounds a single MCP operation.
// Set to 60s to handle npx package downloads on cold start.
const DefaultTimeout = 60 * time.Second

// ErrUnknownServer is returned for a server that is not configured or is disabled.
var ErrUnknownServer = errors.New("unknown server")

// Tool is a tool exposed by a child server.
type Tool struct {
	// Server is the configured server name.
	Server string `json:"server"`

	// Name is the tool name as the server exposes it.
	Name string `json:"name"`

	Description  string `json:"description"`
	InputSchema  any    `json:"inputSchema,omitempty"`
	OutputSchema any    `json:"outputSchema,omitempty"`
}

// QualifiedName returns the provider-qualified name "<server>__<tool>".
func (t Tool) QualifiedName() string {
	return QualifiedName(t.Server, t.Name)
}

// Fingerprint returns the fingerprint of the qualified name and description.
func (t Tool) Fingerprint() string {
	return fingerprint.Compute(t.QualifiedName(), t.Description)
}

// QualifiedName joins a server name and a tool name.
func QualifiedName(server, tool string) string {
	return server + config.NameSeparator + tool
}

// SplitQualifiedName splits at the first separator.
func SplitQualifiedName(qualified string) (server, tool string, ok bool) {
	server, tool, ok = strings.Cut(qualified, config.NameSeparator)
	if !ok || server == "" || tool == "" {
		return "", "", false
	}
	return server, tool, true
}

// Client is the part of an MCP client session the pool uses.
type Client interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// DialFunc starts and initializes a session with a server.
type DialFunc func(ctx context.Context, name string, cfg *config.ServerConfig) (Client, error)

// Pool manages the child MCP server sessions.
type Pool struct {
	servers map[string]*config.ServerConfig
	maxSize int
	timeout time.Duration
	dial    DialFunc
	logger  *zap.Logger

	mu        sync.Mutex
	sessions  map[string]*session
	toolCache map[string][]Tool
}

type session struct {
	client   Client
	lastUsed time.Time
	inflight int
}

// Option configures a Pool.
type Option func(*Pool)

// WithDialer replaces the stdio dialer.
func WithDialer(dial DialFunc) Option {
	return func(p *Pool) { p.dial = dial }
}

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) { p.logger = logging.OrNop(logger) }
}

// WithTimeout bounds every list and call operation.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPool creates a pool over the configured servers.
func NewPool(servers map[string]*config.ServerConfig, maxSize int, opts ...Option) *Pool {
	if maxSize <= 0 {
		maxSize = config.DefaultProcessPoolSize
	}
	p := &Pool{
		servers:   servers,
		maxSize:   maxSize,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
		sessions:  make(map[string]*session),
		toolCache: make(map[string][]Tool),
	}
	p.dial = p.dialStdio
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServerNames returns the enabled server names, sorted.
func (p *Pool) ServerNames() []string {
	names := make([]string, 0, len(p.servers))
	for name, cfg := range p.servers {
		if cfg != nil && !cfg.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ListTools returns the tools of every enabled server. A server that fails
// to start or list is logged and skipped.
func (p *Pool) ListTools(ctx context.Context) ([]Tool, error) {
	var all []Tool
	for _, name := range p.ServerNames() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tools, err := p.ServerTools(ctx, name)
		if err != nil {
			p.logger.Warn("failed to list server tools", zap.String("server", name), zap.Error(err))
			continue
		}
		all = append(all, tools...)
	}
	return all, nil
}

// ServerTools spawns a server if needed and returns its tools.
func (p *Pool) ServerTools(ctx context.Context, name string) ([]Tool, error) {
	p.mu.Lock()
	if cached, ok := p.toolCache[name]; ok {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	var result *mcp.ListToolsResult
	err := p.withSession(ctx, name, func(ctx context.Context, c Client) error {
		var err error
		result, err = c.ListTools(ctx, mcp.ListToolsRequest{})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools of %s: %w", name, err)
	}

	tools := make([]Tool, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, convertTool(name, t))
	}

	p.mu.Lock()
	p.toolCache[name] = tools
	p.mu.Unlock()
	return tools, nil
}

// Refresh drops cached tool lists so the next listing asks the servers again.
func (p *Pool) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCache = make(map[string][]Tool)
}

// CallTool executes a tool identified by its qualified name.
func (p *Pool) CallTool(ctx context.Context, qualifiedName string, args map[string]any) (*mcp.CallToolResult, error) {
	server, tool, ok := SplitQualifiedName(qualifiedName)
	if !ok {
		return nil, fmt.Errorf("malformed tool name %q", qualifiedName)
	}

	var result *mcp.CallToolResult
	err := p.withSession(ctx, server, func(ctx context.Context, c Client) error {
		req := mcp.CallToolRequest{}
		req.Params.Name = tool
		req.Params.Arguments = args
		var err error
		result, err = c.CallTool(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", qualifiedName, err)
	}
	return result, nil
}

// withSession runs fn against the server's session under the pool timeout.
func (p *Pool) withSession(ctx context.Context, name string, fn func(context.Context, Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sess, err := p.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer p.release(sess)

	return fn(ctx, sess.client)
}

// acquire returns an existing session or spawns a new one.
func (p *Pool) acquire(ctx context.Context, name string) (*session, error) {
	cfg, ok := p.servers[name]
	if !ok || cfg == nil || cfg.Disabled {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if sess, exists := p.sessions[name]; exists {
		sess.inflight++
		sess.lastUsed = time.Now()
		return sess, nil
	}

	p.evictIdleLocked()

	c, err := p.dial(ctx, name, cfg)
	if err != nil {
		return nil, err
	}

	sess := &session{client: c, lastUsed: time.Now(), inflight: 1}
	p.sessions[name] = sess
	p.logger.Debug("spawned server", zap.String("server", name))
	return sess, nil
}

func (p *Pool) release(sess *session) {
	p.mu.Lock()
	sess.inflight--
	p.mu.Unlock()
}

// evictIdleLocked closes least recently used idle sessions until there is
// room for one more. Busy sessions are never closed.
func (p *Pool) evictIdleLocked() {
	for len(p.sessions) >= p.maxSize {
		var (
			oldestName string
			oldest     *session
		)
		for name, sess := range p.sessions {
			if sess.inflight > 0 {
				continue
			}
			if oldest == nil || sess.lastUsed.Before(oldest.lastUsed) {
				oldestName, oldest = name, sess
			}
		}
		if oldest == nil {
			return
		}

		p.logger.Debug("closing idle server", zap.String("server", oldestName))
		if err := oldest.client.Close(); err != nil {
			p.logger.Warn("failed to close server", zap.String("server", oldestName), zap.Error(err))
		}
		delete(p.sessions, oldestName)
	}
}

// Size returns the number of live sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close terminates every session.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, sess := range p.sessions {
		p.logger.Debug("terminating server", zap.String("server", name))
		if err := sess.client.Close(); err != nil && !strings.Contains(err.Error(), "signal: killed") {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	p.sessions = make(map[string]*session)

	return errors.Join(errs...)
}

// dialStdio spawns the server process and performs the MCP handshake.
func (p *Pool) dialStdio(ctx context.Context, name string, cfg *config.ServerConfig) (Client, error) {
	env := os.Environ()
	for key, value := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	// Child servers that log heavily would block once the stderr pipe fills.
	if stderr, ok := client.GetStderr(c); ok {
		go p.drainStderr(name, stderr)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    version.Name,
		Version: version.Version,
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		if strings.Contains(err.Error(), "EOF") {
			if pkg := getNpmPackageFromConfig(cfg); pkg != "" {
				return nil, fmt.Errorf("MCP server failed to start. Package '%s' may not exist or failed to load. Verify with: npm view %s", pkg, pkg)
			}
		}
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return c, nil
}

func (p *Pool) drainStderr(name string, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		p.logger.Debug("server stderr", zap.String("server", name), zap.String("line", scanner.Text()))
	}
}

// convertTool maps an MCP tool definition onto a pool Tool.
func convertTool(server string, t mcp.Tool) Tool {
	tool := Tool{
		Server:      server,
		Name:        t.Name,
		Description: t.Description,
	}

	if len(t.RawInputSchema) > 0 {
		tool.InputSchema = json.RawMessage(t.RawInputSchema)
	} else {
		tool.InputSchema = t.InputSchema
	}
	tool.OutputSchema = outputSchema(t)
	return tool
}

// outputSchema extracts the declared output schema from the tool's wire form.
// Schemas without a type are treated as absent.
func outputSchema(t mcp.Tool) any {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil
	}
	var wire struct {
		OutputSchema map[string]any `json:"outputSchema"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil
	}
	if typ, _ := wire.OutputSchema["type"].(string); typ == "" {
		return nil
	}
	return wire.OutputSchema
}

// getNpmPackageFromConfig extracts npm package name from server config.
func getNpmPackageFromConfig(cfg *config.ServerConfig) string {
	if cfg.Command != "npx" {
		return ""
	}
	for _, arg := range cfg.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg
	}
	return ""
}
