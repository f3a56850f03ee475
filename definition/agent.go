// Package definition decodes stored agent, tool and model configuration
// documents into closed, typed unions.
//
// Agent definitions are one of Leaf, Loop, Sequential or Parallel; tool
// definitions are one of RemoteToolRef or LocalToolRef. Consumers switch
// exhaustively over the concrete types.
package definition

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/hupe1980/agentforge/core"
)

// DefaultMaxLoops is used when a loop definition has no usable maxLoops.
const DefaultMaxLoops = 3

// Agent is a decoded agent definition. The set of implementations is closed.
type Agent interface {
	Base() *Common
	isAgent()
}

// Common holds the fields shared by every agent kind.
type Common struct {
	Name        string
	Description string
	// Raw is the document the definition was decoded from.
	Raw map[string]any
}

// Base returns the shared fields.
func (c *Common) Base() *Common { return c }

// Leaf is a single model-backed agent.
type Leaf struct {
	Common
	ModelID           string
	SystemInstruction string
	OutputKey         string
	Tools             []any
}

// Loop repeats one model-backed child up to MaxLoops times.
type Loop struct {
	Leaf
	// MaxLoops is the raw maxLoops value (string, number or nil).
	MaxLoops any
}

// Sequential runs its children in order.
type Sequential struct {
	Common
	Children []map[string]any
}

// Parallel runs its children concurrently.
type Parallel struct {
	Common
	Children []map[string]any
}

func (*Leaf) isAgent()       {}
func (*Loop) isAgent()       {}
func (*Sequential) isAgent() {}
func (*Parallel) isAgent()   {}

// Decode turns an agent document into its typed definition. The agent type is
// checked before anything else.
func Decode(doc map[string]any) (Agent, error) {
	name := stringField(doc, "name")

	agentType, _ := doc["agentType"].(string)
	switch agentType {
	case core.AgentTypeLeaf, core.AgentTypeLoop, core.AgentTypeSequential, core.AgentTypeParallel:
	default:
		return nil, core.NewConfigError(name, "decode agent", fmt.Errorf("%w: %q", core.ErrUnknownAgentType, agentType))
	}

	common := Common{
		Name:        name,
		Description: stringField(doc, "description"),
		Raw:         maps.Clone(doc),
	}

	switch agentType {
	case core.AgentTypeLeaf, core.AgentTypeLoop:
		leaf := Leaf{
			Common:            common,
			ModelID:           stringField(doc, "modelId"),
			SystemInstruction: stringField(doc, "systemInstruction"),
			OutputKey:         stringField(doc, "outputKey"),
		}
		if leaf.ModelID == "" {
			return nil, core.NewConfigError(name, "decode agent", fmt.Errorf("%w: %s agent requires modelId", core.ErrMissingModelID, agentType))
		}
		if tools, ok := doc["tools"].([]any); ok {
			leaf.Tools = tools
		}
		if agentType == core.AgentTypeLoop {
			return &Loop{Leaf: leaf, MaxLoops: doc["maxLoops"]}, nil
		}
		return &leaf, nil
	case core.AgentTypeSequential:
		children, err := childDocs(name, doc)
		if err != nil {
			return nil, err
		}
		return &Sequential{Common: common, Children: children}, nil
	default:
		children, err := childDocs(name, doc)
		if err != nil {
			return nil, err
		}
		return &Parallel{Common: common, Children: children}, nil
	}
}

func childDocs(name string, doc map[string]any) ([]map[string]any, error) {
	raw, ok := doc["childAgents"]
	if !ok || raw == nil {
		return nil, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, core.NewConfigError(name, "decode agent", fmt.Errorf("childAgents must be a list, got %T", raw))
	}

	out := make([]map[string]any, 0, len(list))
	for i, c := range list {
		m, ok := c.(map[string]any)
		if !ok {
			return nil, core.NewConfigError(name, "decode agent", fmt.Errorf("childAgents[%d] must be an object, got %T", i, c))
		}
		out = append(out, m)
	}

	return out, nil
}

// MaxIterations parses MaxLoops. ok is false when the value was missing,
// unparsable or not positive and DefaultMaxLoops was used instead.
func (l *Loop) MaxIterations() (n int, ok bool) {
	switch v := l.MaxLoops.(type) {
	case nil:
		return DefaultMaxLoops, true
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return DefaultMaxLoops, false
		}
		n = parsed
	default:
		return DefaultMaxLoops, false
	}

	if n <= 0 {
		return DefaultMaxLoops, false
	}

	return n, true
}

// Merge returns the shallow merge of a model document under a node document;
// node fields win.
func Merge(modelDoc, nodeDoc map[string]any) map[string]any {
	out := make(map[string]any, len(modelDoc)+len(nodeDoc))
	maps.Copy(out, modelDoc)
	maps.Copy(out, nodeDoc)
	return out
}

func stringField(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
