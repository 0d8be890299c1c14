package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/tool-finder-mcp/internal/hub"
	"github.com/khanglvm/tool-finder-mcp/internal/storage"
)

type fakeService struct {
	retrieveReq hub.RetrieveRequest
	retrieveErr error

	execFingerprint string
	execParams      map[string]any
	execErr         error
}

func (f *fakeService) Retrieve(_ context.Context, req hub.RetrieveRequest) (*hub.RetrieveResponse, error) {
	f.retrieveReq = req
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return &hub.RetrieveResponse{
		SessionID: "abc123",
		FirstTime: true,
		Results: []hub.DescriptionResult{{
			Description: req.Descriptions[0],
			NewTools:    []hub.NewTool{{Rank: 1, Name: "mail__send_email", Server: "mail", Fingerprint: "fp"}},
			KnownTools:  []hub.KnownTool{},
			NewCount:    1,
		}},
		TotalNew: 1,
	}, nil
}

func (f *fakeService) Execute(_ context.Context, fp string, params map[string]any) (*mcp.CallToolResult, error) {
	f.execFingerprint = fp
	f.execParams = params
	if f.execErr != nil {
		return nil, f.execErr
	}
	return mcp.NewToolResultText("sent"), nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestToolsList(t *testing.T) {
	s := NewServer(&fakeService{}, nil)

	raw := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				InputSchema struct {
					Required   []string       `json:"required"`
					Properties map[string]any `json:"properties"`
				} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))

	tools := map[string][]string{}
	for _, tool := range resp.Result.Tools {
		tools[tool.Name] = tool.InputSchema.Required
	}
	assert.Equal(t, map[string][]string{
		RetrieveToolName: {"descriptions"},
		ExecuteToolName:  {"fingerprint"},
	}, tools)
}

func TestRetrieveTool(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	result, err := s.handleRetrieve(context.Background(), callRequest(RetrieveToolName, map[string]any{
		"descriptions": []any{"send an email"},
		"session_id":   "old",
		"server_names": []any{"mail"},
		"group_names":  []any{"communication"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	assert.Equal(t, hub.RetrieveRequest{
		Descriptions: []string{"send an email"},
		SessionID:    "old",
		ServerNames:  []string{"mail"},
		GroupNames:   []string{"communication"},
	}, svc.retrieveReq)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	assert.Equal(t, "abc123", body["session_id"])
	assert.Equal(t, true, body["first_time"])
	assert.EqualValues(t, 1, body["total_new"])

	resp, ok := result.StructuredContent.(*hub.RetrieveResponse)
	require.True(t, ok)
	assert.Equal(t, "mail__send_email", resp.Results[0].NewTools[0].Name)
}

func TestRetrieveToolErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", fmt.Errorf("%w: descriptions must not be empty", hub.ErrValidation), "invalid request: descriptions must not be empty"},
		{"not initialized", fmt.Errorf("failed to read session x: %w", storage.ErrNotInitialized), "index is not ready"},
		{"timeout", fmt.Errorf("failed to embed query: %w", context.DeadlineExceeded), "request timed out"},
		{"internal", errors.New("failed to search index: disk I/O error at /home/user/.tool-finder-mcp/index.db"), "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeService{retrieveErr: tt.err}, nil)

			result, err := s.handleRetrieve(context.Background(), callRequest(RetrieveToolName, map[string]any{
				"descriptions": []any{"x"},
			}))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, resultText(t, result))
		})
	}
}

func TestRetrieveToolBadArguments(t *testing.T) {
	s := NewServer(&fakeService{}, nil)

	result, err := s.handleRetrieve(context.Background(), callRequest(RetrieveToolName, map[string]any{
		"descriptions": "not a list",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "invalid arguments")
}

func TestExecuteTool(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	result, err := s.handleExecute(context.Background(), callRequest(ExecuteToolName, map[string]any{
		"fingerprint": "0123456789abcdef0123456789abcdef",
		"parameters":  map[string]any{"to": "a@b.c"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "sent", resultText(t, result))
	assert.Equal(t, "0123456789abcdef0123456789abcdef", svc.execFingerprint)
	assert.Equal(t, map[string]any{"to": "a@b.c"}, svc.execParams)
}

func TestExecuteToolNotFound(t *testing.T) {
	s := NewServer(&fakeService{execErr: fmt.Errorf("%w: deadbeef", hub.ErrToolNotFound)}, nil)

	result, err := s.handleExecute(context.Background(), callRequest(ExecuteToolName, map[string]any{
		"fingerprint": "deadbeef",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "tool not found: deadbeef", resultText(t, result))
}

func TestExecuteToolThroughServer(t *testing.T) {
	svc := &fakeService{}
	s := NewServer(svc, nil)

	raw := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"execute_tool","arguments":{"fingerprint":"fp1","parameters":{"n":1}}}}`,
	))
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	var resp struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.False(t, resp.Result.IsError)
	require.Len(t, resp.Result.Content, 1)
	assert.Equal(t, "sent", resp.Result.Content[0].Text)
	assert.Equal(t, "fp1", svc.execFingerprint)
	assert.EqualValues(t, 1, svc.execParams["n"])
}
