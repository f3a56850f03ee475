package toolset

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/tool"
	"github.com/hupe1980/agentforge/tool/mcp"
)

type fakeServer struct {
	tools []string
}

func (f *fakeServer) ListTools(context.Context, mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	res := &mcpgo.ListToolsResult{}
	for _, n := range f.tools {
		res.Tools = append(res.Tools, mcpgo.NewTool(n))
	}
	return res, nil
}

func (f *fakeServer) CallTool(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return mcpgo.NewToolResultText("ok"), nil
}

func (f *fakeServer) Close() error { return nil }

type dialCall struct {
	url     string
	headers map[string]string
}

func recordingDialer(calls *[]dialCall, failURL string) mcp.Dialer {
	return func(_ context.Context, url string, headers map[string]string) (mcp.Client, error) {
		*calls = append(*calls, dialCall{url: url, headers: headers})
		if url == failURL {
			return nil, errors.New("connection refused")
		}
		return &fakeServer{tools: []string{"a", "b", "c"}}, nil
	}
}

func mcpEntry(url, name string, auth map[string]any) map[string]any {
	m := map[string]any{"type": "mcp", "mcpServerUrl": url, "mcpToolName": name}
	if auth != nil {
		m["auth"] = auth
	}
	return m
}

func TestResolve_GroupsByServerAndAuth(t *testing.T) {
	var calls []dialCall
	r := NewResolver(func(o *Options) { o.Dial = recordingDialer(&calls, "") })

	bearer1 := map[string]any{"type": "bearer", "token": "t1"}
	bearer1Reordered := map[string]any{"token": "t1", "type": "bearer"}
	bearer2 := map[string]any{"type": "bearer", "token": "t2"}

	raw := []any{
		mcpEntry("https://s1/mcp", "a", bearer1),
		mcpEntry("https://s2/sse", "a", nil),
		mcpEntry("https://s1/mcp", "b", bearer1Reordered),
		mcpEntry("https://s1/mcp", "a", bearer1),
		mcpEntry("https://s1/mcp", "c", bearer2),
	}

	res, err := r.Resolve(context.Background(), raw, "node_1")
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)

	require.Len(t, calls, 3)
	assert.Equal(t, "https://s1/mcp", calls[0].url)
	assert.Equal(t, "Bearer t1", calls[0].headers["Authorization"])
	assert.Equal(t, "https://s2/sse", calls[1].url)
	assert.Nil(t, calls[1].headers)
	assert.Equal(t, "Bearer t2", calls[2].headers["Authorization"])

	require.Len(t, res.Toolsets, 3)
	assert.Equal(t, []string{"a", "b"}, res.Toolsets[0].Filter())
	assert.Equal(t, mcp.TransportSSE, res.Toolsets[1].Transport())
	assert.Equal(t, []string{"c"}, res.Toolsets[2].Filter())

	assert.Len(t, res.AllTools(), 4)
	require.NoError(t, res.Close())
}

func TestResolve_LocalTools(t *testing.T) {
	reg := tool.NewDefaultRegistry()
	r := NewResolver(func(o *Options) { o.Registry = reg })

	raw := []any{
		map[string]any{"type": "custom_repo", "id": "exit", "module_path": "builtin", "class_name": "ExitLoop"},
		map[string]any{"type": "custom_repo", "id": "missing", "module_path": "acme.tools", "class_name": "Nope"},
	}

	res, err := r.Resolve(context.Background(), raw, "node_1")
	require.NoError(t, err)

	require.Len(t, res.Tools, 1)
	assert.Equal(t, "exit_loop", res.Tools[0].Name())

	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "node_1", res.Diagnostics[0].Node)
	assert.Contains(t, res.Diagnostics[0].Message, "missing")
	assert.Contains(t, res.Diagnostics[0].Message, core.ErrToolNotRegistered.Error())
}

func TestResolve_SkipsInvalidEntries(t *testing.T) {
	var calls []dialCall
	r := NewResolver(func(o *Options) { o.Dial = recordingDialer(&calls, "") })

	raw := []any{
		"not-an-object",
		map[string]any{"type": "openapi"},
		map[string]any{"type": "mcp", "mcpServerUrl": "https://s1/mcp"},
	}

	res, err := r.Resolve(context.Background(), raw, "node_1")
	require.NoError(t, err)
	assert.Empty(t, res.AllTools())
	assert.Len(t, res.Diagnostics, 3)
	assert.Empty(t, calls)
}

func TestResolve_FailingGroupContinues(t *testing.T) {
	var calls []dialCall
	r := NewResolver(func(o *Options) { o.Dial = recordingDialer(&calls, "https://down/mcp") })

	raw := []any{
		mcpEntry("https://down/mcp", "a", nil),
		mcpEntry("https://up/mcp", "b", nil),
	}

	res, err := r.Resolve(context.Background(), raw, "node_1")
	require.NoError(t, err)
	require.Len(t, res.Toolsets, 1)
	assert.Equal(t, "https://up/mcp", res.Toolsets[0].URL())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, core.DiagnosticError, res.Diagnostics[0].Level)
	assert.Contains(t, res.Diagnostics[0].Message, "connection refused")
}

func TestResolve_ContextCancelled(t *testing.T) {
	var calls []dialCall
	r := NewResolver(func(o *Options) { o.Dial = recordingDialer(&calls, "") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, []any{mcpEntry("https://s1/mcp", "a", nil)}, "node_1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
}

func TestBuildAuth(t *testing.T) {
	auth, diags := BuildAuth(map[string]any{"type": "bearer", "token": "tok"})
	assert.Empty(t, diags)
	assert.Equal(t, map[string]string{"Authorization": "Bearer tok"}, auth.Headers())

	auth, diags = BuildAuth(map[string]any{"type": "apiKey", "key": "k", "name": "X-Key", "in": "header"})
	assert.Empty(t, diags)
	assert.Equal(t, map[string]string{"X-Key": "k"}, auth.Headers())

	for _, cfg := range []map[string]any{
		{"type": "bearer"},
		{"type": "apiKey", "key": "k", "name": "X-Key", "in": "query"},
		{"type": "apiKey", "key": "k"},
		{"type": "oauth2"},
	} {
		auth, diags := BuildAuth(cfg)
		assert.Nil(t, auth)
		assert.Len(t, diags, 1)
	}

	auth, diags = BuildAuth(nil)
	assert.Nil(t, auth)
	assert.Empty(t, diags)
}
