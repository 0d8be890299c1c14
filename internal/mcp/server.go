/*
Package mcp implements the MCP server that exposes the tool finder.

The server uses stdio transport and exposes 2 meta-tools:
  - retrieve_tools: find tools for natural-language capability descriptions
  - execute_tool: call a tool by the fingerprint retrieve_tools returned

Errors reach the client as tool results with an opaque message; the detail
goes to the log.
*/
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/khanglvm/tool-finder-mcp/internal/hub"
	"github.com/khanglvm/tool-finder-mcp/internal/logging"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
	"github.com/khanglvm/tool-finder-mcp/internal/version"
)

// Tool names.
const (
	RetrieveToolName = "retrieve_tools"
	ExecuteToolName  = "execute_tool"
)

// Service is what the meta-tools call into. *hub.Hub implements it.
type Service interface {
	Retrieve(ctx context.Context, req hub.RetrieveRequest) (*hub.RetrieveResponse, error)
	Execute(ctx context.Context, fingerprint string, params map[string]any) (*mcp.CallToolResult, error)
}

var _ Service = (*hub.Hub)(nil)

// Server represents the tool-finder-mcp MCP server.
type Server struct {
	svc    Service
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server backed by svc.
func NewServer(svc Service, logger *zap.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logging.OrNop(logger),
	}

	s.mcp = server.NewMCPServer(
		version.Name,
		version.Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	s.mcp.AddTools(s.tools()...)
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Run serves MCP over stdin and stdout until stdin closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	return stdio.Listen(ctx, in, out)
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.Tool{
				Name: RetrieveToolName,
				Description: `Find tools for the capabilities you need.

WHEN TO USE: Before doing a task that needs an external integration. Describe each capability in plain language, one per entry in descriptions (e.g. "send an email", "create a calendar event").

SESSIONS: Pass the session_id from your previous response. Tools already sent in the session come back under known_tools with name and fingerprint only; new ones come back under new_tools with their full schema.

NEXT STEP: Call execute_tool with the fingerprint of the tool you want.`,
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"descriptions": map[string]any{
							"type":        "array",
							"description": "Natural-language descriptions of the capabilities needed",
							"items":       map[string]any{"type": "string"},
							"minItems":    1,
						},
						"session_id": map[string]any{
							"type":        "string",
							"description": "Session id from a previous retrieve_tools response",
						},
						"server_names": map[string]any{
							"type":        "array",
							"description": "Only consider tools from these servers",
							"items":       map[string]any{"type": "string"},
						},
						"group_names": map[string]any{
							"type":        "array",
							"description": "Only consider tools from servers in these groups",
							"items":       map[string]any{"type": "string"},
						},
					},
					Required: []string{"descriptions"},
				},
			},
			Handler: s.handleRetrieve,
		},
		{
			Tool: mcp.Tool{
				Name: ExecuteToolName,
				Description: `Execute a tool found with retrieve_tools.

Pass the tool's fingerprint and the parameters its input_schema describes.`,
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]any{
						"fingerprint": map[string]any{
							"type":        "string",
							"description": "Fingerprint of the tool, as returned by retrieve_tools",
						},
						"parameters": map[string]any{
							"type":        "object",
							"description": "Arguments for the tool",
						},
					},
					Required: []string{"fingerprint"},
				},
			},
			Handler: s.handleExecute,
		},
	}
}

func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args hub.RetrieveRequest
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	resp, err := s.svc.Retrieve(ctx, args)
	if err != nil {
		return s.toolError(RetrieveToolName, err), nil
	}
	return mcp.NewToolResultStructuredOnly(resp), nil
}

func (s *Server) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Fingerprint string         `json:"fingerprint"`
		Parameters  map[string]any `json:"parameters"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	result, err := s.svc.Execute(ctx, args.Fingerprint, args.Parameters)
	if err != nil {
		return s.toolError(ExecuteToolName, err), nil
	}
	return result, nil
}

// toolError renders err for the client. Only validation and not-found
// messages are passed through.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, hub.ErrValidation), errors.Is(err, hub.ErrToolNotFound):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, storage.ErrNotInitialized):
		s.logger.Error("index not ready", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError("index is not ready")
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("request timed out", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError("request timed out")
	default:
		s.logger.Error("tool call failed", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError("internal error")
	}
}
