package mcp

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/tool"
)

type mockClient struct {
	tools   []mcpgo.Tool
	listErr error
	callFn  func(req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	closed  bool
}

func (m *mockClient) ListTools(context.Context, mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &mcpgo.ListToolsResult{Tools: m.tools}, nil
}

func (m *mockClient) CallTool(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return m.callFn(req)
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func dialer(c *mockClient, gotHeaders *map[string]string) Dialer {
	return func(_ context.Context, _ string, headers map[string]string) (Client, error) {
		if gotHeaders != nil {
			*gotHeaders = headers
		}
		return c, nil
	}
}

func toolCtx() *core.ToolContext {
	rc := core.NewRunContext(
		context.Background(), "sess-1", "run-1", core.AgentInfo{Name: "agent_1", Type: core.AgentTypeLeaf},
		core.Content{}, 0, nil, nil, core.NewSession("sess-1"), nil, logging.NoOpLogger{},
	)
	return core.NewToolContext(rc, "fc-1")
}

func searchTool() mcpgo.Tool {
	return mcpgo.NewTool("search",
		mcpgo.WithDescription("Search the web"),
		mcpgo.WithString("query", mcpgo.Required()),
	)
}

func TestTransportFor(t *testing.T) {
	assert.Equal(t, TransportSSE, TransportFor("https://tools.example.com/sse"))
	assert.Equal(t, TransportStreamableHTTP, TransportFor("https://tools.example.com/mcp"))
	assert.Equal(t, TransportStreamableHTTP, TransportFor("https://tools.example.com/sse/x"))
}

func TestAuthHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"Authorization": "Bearer tok"}, (&Auth{Scheme: "bearer", Credential: "tok"}).Headers())
	assert.Equal(t, map[string]string{"X-Api-Key": "k"}, (&Auth{Scheme: "apiKey", HeaderName: "X-Api-Key", Credential: "k"}).Headers())
	assert.Nil(t, (&Auth{Scheme: "apiKey", Credential: "k"}).Headers())
	assert.Nil(t, (&Auth{Scheme: "basic", Credential: "k"}).Headers())

	var nilAuth *Auth
	assert.Nil(t, nilAuth.Headers())
}

func TestConnect_FilterAndHeaders(t *testing.T) {
	c := &mockClient{tools: []mcpgo.Tool{searchTool(), mcpgo.NewTool("fetch")}}

	var headers map[string]string
	ts, err := Connect(context.Background(), "https://tools.example.com/mcp", func(o *Options) {
		o.Dial = dialer(c, &headers)
		o.Auth = &Auth{Scheme: "bearer", Credential: "tok"}
		o.Filter = []string{"search", "missing"}
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", headers["Authorization"])
	assert.Equal(t, TransportStreamableHTTP, ts.Transport())
	assert.Equal(t, []string{"search", "missing"}, ts.Filter())

	tools := ts.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].Name())
	assert.Equal(t, "Search the web", tools[0].Description())

	params := tools[0].Parameters()
	assert.Equal(t, "object", params["type"])
	assert.Contains(t, params["properties"], "query")

	require.NoError(t, ts.Close())
	assert.True(t, c.closed)
}

func TestConnect_NoFilterExposesAll(t *testing.T) {
	c := &mockClient{tools: []mcpgo.Tool{searchTool(), mcpgo.NewTool("fetch")}}

	ts, err := Connect(context.Background(), "https://tools.example.com/sse", func(o *Options) {
		o.Dial = dialer(c, nil)
	})
	require.NoError(t, err)
	assert.Len(t, ts.Tools(), 2)
	assert.Equal(t, TransportSSE, ts.Transport())
}

func TestConnect_ListErrorClosesClient(t *testing.T) {
	c := &mockClient{listErr: errors.New("unreachable")}

	_, err := Connect(context.Background(), "https://tools.example.com/mcp", func(o *Options) {
		o.Dial = dialer(c, nil)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	assert.True(t, c.closed)
}

func TestRemoteTool_Call(t *testing.T) {
	c := &mockClient{
		tools: []mcpgo.Tool{searchTool()},
		callFn: func(req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args, _ := req.Params.Arguments.(map[string]any)
			return &mcpgo.CallToolResult{Content: []mcpgo.Content{
				mcpgo.NewTextContent("result for " + args["query"].(string)),
				mcpgo.NewTextContent("second"),
			}}, nil
		},
	}

	ts, err := Connect(context.Background(), "https://tools.example.com/mcp", func(o *Options) { o.Dial = dialer(c, nil) })
	require.NoError(t, err)

	out, err := ts.Tools()[0].Call(toolCtx(), map[string]any{"query": "go"})
	require.NoError(t, err)
	assert.Equal(t, "result for go\nsecond", out)
}

func TestRemoteTool_CallErrors(t *testing.T) {
	t.Run("tool error result", func(t *testing.T) {
		c := &mockClient{
			tools: []mcpgo.Tool{searchTool()},
			callFn: func(mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
				return mcpgo.NewToolResultError("bad query"), nil
			},
		}
		ts, err := Connect(context.Background(), "https://tools.example.com/mcp", func(o *Options) { o.Dial = dialer(c, nil) })
		require.NoError(t, err)

		_, err = ts.Tools()[0].Call(toolCtx(), nil)
		var toolErr *tool.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "MCP_TOOL_ERROR", toolErr.Code)
		assert.Equal(t, "bad query", toolErr.Message)
	})

	t.Run("transport failure", func(t *testing.T) {
		c := &mockClient{
			tools: []mcpgo.Tool{searchTool()},
			callFn: func(mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
				return nil, errors.New("connection reset")
			},
		}
		ts, err := Connect(context.Background(), "https://tools.example.com/mcp", func(o *Options) { o.Dial = dialer(c, nil) })
		require.NoError(t, err)

		_, err = ts.Tools()[0].Call(toolCtx(), nil)
		var toolErr *tool.ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "MCP_CALL_FAILED", toolErr.Code)
	})
}
