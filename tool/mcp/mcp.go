// Package mcp exposes the tools of a remote MCP server as tool.Tool values.
//
// One Toolset owns one client connection and serves every tool name in its
// filter, so agents referencing several tools on the same server with the
// same credentials share a single connection.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/tool"
)

// Transport names.
const (
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable_http"
)

// DefaultCallTimeout bounds a single tool call.
const DefaultCallTimeout = 30 * time.Second

// Client is the subset of the MCP client used by a Toolset.
type Client interface {
	ListTools(ctx context.Context, request mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// Dialer opens an initialized client connection.
type Dialer func(ctx context.Context, serverURL string, headers map[string]string) (Client, error)

// Auth carries the credential sent with every request to the server.
type Auth struct {
	// Scheme is "bearer" or "apiKey".
	Scheme string
	// HeaderName is the header used for apiKey auth.
	HeaderName string
	Credential string
}

// Headers returns the HTTP headers for a.
func (a *Auth) Headers() map[string]string {
	if a == nil || a.Credential == "" {
		return nil
	}

	switch a.Scheme {
	case "bearer":
		return map[string]string{"Authorization": "Bearer " + a.Credential}
	case "apiKey":
		if a.HeaderName == "" {
			return nil
		}
		return map[string]string{a.HeaderName: a.Credential}
	default:
		return nil
	}
}

// Options configures a Toolset.
type Options struct {
	Auth *Auth
	// Filter restricts the exposed tools to these names. Empty exposes all.
	Filter      []string
	CallTimeout time.Duration
	Dial        Dialer
	Logger      logging.Logger
}

// Toolset is a set of tools served by one MCP connection.
type Toolset struct {
	url       string
	transport string
	filter    []string
	client    Client
	tools     []tool.Tool
	logger    logging.Logger
}

// TransportFor selects SSE for URLs ending in "/sse", else streamable HTTP.
func TransportFor(serverURL string) string {
	if strings.HasSuffix(strings.TrimRight(serverURL, " "), "/sse") {
		return TransportSSE
	}
	return TransportStreamableHTTP
}

// Connect dials serverURL, discovers its tools and applies the filter.
func Connect(ctx context.Context, serverURL string, optFns ...func(o *Options)) (*Toolset, error) {
	opts := Options{
		CallTimeout: DefaultCallTimeout,
		Dial:        Dial,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	c, err := opts.Dial(ctx, serverURL, opts.Auth.Headers())
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", serverURL, err)
	}

	ts := &Toolset{
		url:       serverURL,
		transport: TransportFor(serverURL),
		filter:    slices.Clone(opts.Filter),
		client:    c,
		logger:    opts.Logger,
	}

	if err := ts.discover(ctx, opts.CallTimeout); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp server %s: %w", serverURL, err)
	}

	return ts, nil
}

// Dial is the default Dialer using mcp-go's SSE or streamable HTTP transport.
func Dial(ctx context.Context, serverURL string, headers map[string]string) (Client, error) {
	var t transport.Interface

	switch TransportFor(serverURL) {
	case TransportSSE:
		sse, err := transport.NewSSE(serverURL, transport.WithHeaders(headers))
		if err != nil {
			return nil, fmt.Errorf("create sse transport: %w", err)
		}
		t = sse
	default:
		h, err := transport.NewStreamableHTTP(serverURL, transport.WithHTTPHeaders(headers))
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		t = h
	}

	c := mcpclient.NewClient(t)
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "agentforge", Version: "1.0.0"}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return c, nil
}

func (ts *Toolset) discover(ctx context.Context, timeout time.Duration) error {
	result, err := ts.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	found := map[string]bool{}

	for _, t := range result.Tools {
		if len(ts.filter) > 0 && !slices.Contains(ts.filter, t.Name) {
			continue
		}
		found[t.Name] = true
		ts.tools = append(ts.tools, &remoteTool{client: ts.client, def: t, timeout: timeout})
	}

	for _, name := range ts.filter {
		if !found[name] {
			ts.logger.Warn("mcp.tool.missing", "server", ts.url, "tool", name)
		}
	}

	ts.logger.Info("mcp.toolset.ready", "server", ts.url, "transport", ts.transport, "tools", len(ts.tools))

	return nil
}

// URL returns the server URL.
func (ts *Toolset) URL() string { return ts.url }

// Transport returns the transport name in use.
func (ts *Toolset) Transport() string { return ts.transport }

// Filter returns the configured tool-name filter.
func (ts *Toolset) Filter() []string { return slices.Clone(ts.filter) }

// Tools returns the exposed tools.
func (ts *Toolset) Tools() []tool.Tool { return slices.Clone(ts.tools) }

// Close closes the connection.
func (ts *Toolset) Close() error { return ts.client.Close() }

type remoteTool struct {
	client  Client
	def     mcpgo.Tool
	timeout time.Duration
}

var _ tool.Tool = (*remoteTool)(nil)

func (r *remoteTool) Name() string { return r.def.Name }

func (r *remoteTool) Description() string { return r.def.Description }

func (r *remoteTool) Parameters() map[string]any {
	params := map[string]any{"type": "object", "properties": map[string]any{}}

	if r.def.InputSchema.Properties == nil && r.def.InputSchema.Required == nil {
		return params
	}

	b, err := json.Marshal(r.def.InputSchema)
	if err != nil {
		return params
	}

	var schema map[string]any
	if err := json.Unmarshal(b, &schema); err != nil {
		return params
	}

	return schema
}

func (r *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = r.def.Name
	req.Params.Arguments = args

	ctx, cancel := context.WithTimeout(toolCtx.Context(), r.timeout)
	defer cancel()

	toolCtx.LogDebug("mcp.tool.call", "tool", r.def.Name, "function_call_id", toolCtx.FunctionCallID())

	result, err := r.client.CallTool(ctx, req)
	if err != nil {
		return nil, &tool.ToolError{Tool: r.def.Name, Message: err.Error(), Code: "MCP_CALL_FAILED"}
	}

	text := contentText(result)
	if result.IsError {
		return nil, &tool.ToolError{Tool: r.def.Name, Message: text, Code: "MCP_TOOL_ERROR"}
	}

	return text, nil
}

func contentText(result *mcpgo.CallToolResult) string {
	var parts []string

	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}

	return strings.Join(parts, "\n")
}
