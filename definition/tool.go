package definition

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentforge/core"
)

// Tool definition type tags.
const (
	ToolTypeMCP        = "mcp"
	ToolTypeCustomRepo = "custom_repo"
)

// Tool is a decoded tool definition: *RemoteToolRef or *LocalToolRef.
type Tool interface {
	isTool()
}

// RemoteToolRef names one tool on an MCP server.
type RemoteToolRef struct {
	ServerURL string
	ToolName  string
	// Auth is the raw auth object, nil when absent.
	Auth map[string]any
}

// LocalToolRef names a tool built by a registered factory.
type LocalToolRef struct {
	ID            string
	ModulePath    string
	ClassName     string
	Configuration map[string]any
}

func (*RemoteToolRef) isTool() {}
func (*LocalToolRef) isTool()  {}

// Key is the factory registry key of the tool.
func (l *LocalToolRef) Key() string { return l.ModulePath + "." + l.ClassName }

// DecodeTool decodes one entry of an agent's tools list. Malformed entries and
// unknown types yield an error wrapping core.ErrInvalidTool.
func DecodeTool(raw any) (Tool, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: entry must be an object, got %T", core.ErrInvalidTool, raw)
	}

	switch t := stringField(m, "type"); t {
	case ToolTypeMCP:
		ref := &RemoteToolRef{
			ServerURL: stringField(m, "mcpServerUrl"),
			ToolName:  stringField(m, "mcpToolName"),
		}
		if ref.ServerURL == "" || ref.ToolName == "" {
			return nil, fmt.Errorf("%w: mcp tool requires mcpServerUrl and mcpToolName", core.ErrInvalidTool)
		}
		if auth, ok := m["auth"].(map[string]any); ok && len(auth) > 0 {
			ref.Auth = auth
		}
		return ref, nil
	case ToolTypeCustomRepo:
		ref := &LocalToolRef{
			ID:         stringField(m, "id"),
			ModulePath: stringField(m, "module_path"),
			ClassName:  stringField(m, "class_name"),
		}
		if ref.ModulePath == "" || ref.ClassName == "" {
			return nil, fmt.Errorf("%w: custom tool %q requires module_path and class_name", core.ErrInvalidTool, ref.ID)
		}
		if cfg, ok := m["configuration"].(map[string]any); ok {
			ref.Configuration = cfg
		}
		return ref, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool type %q", core.ErrInvalidTool, t)
	}
}

// AuthKey returns a canonical string for an auth object. Structurally equal
// objects yield the same key regardless of key order.
func AuthKey(auth map[string]any) string {
	if len(auth) == 0 {
		return ""
	}

	// encoding/json sorts map keys
	b, err := json.Marshal(auth)
	if err != nil {
		return fmt.Sprintf("%v", auth)
	}

	return string(b)
}
