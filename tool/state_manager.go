package tool

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/agentforge/core"
)

type stateOp func(tc *core.ToolContext, args map[string]any) (any, error)

// StateManagerTool gives a model access to run state and loop control. It is
// registered as "builtin.StateManager".
type StateManagerTool struct {
	ops map[string]stateOp
}

func NewStateManagerTool() *StateManagerTool {
	return &StateManagerTool{ops: map[string]stateOp{
		"get_state":           getState,
		"set_state":           setState,
		"escalate":            escalate,
		"skip_summarization":  skipSummarization,
		"get_session_history": sessionHistory,
	}}
}

func (t *StateManagerTool) Name() string { return "state_manager" }

func (t *StateManagerTool) Description() string {
	return "Reads or writes run state, ends the enclosing loop, or returns the conversation so far."
}

func (t *StateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{"type": "string", "enum": t.operations()},
			"key":       map[string]any{"type": "string", "description": "state key for get_state and set_state"},
			"value":     map[string]any{"description": "value for set_state"},
		},
		"required": []string{"operation"},
	}
}

func (t *StateManagerTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	name, _ := args["operation"].(string)
	if name == "" {
		return nil, errors.New("operation is required")
	}

	op, ok := t.ops[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q (want one of %v)", name, t.operations())
	}

	return op(tc, args)
}

func (t *StateManagerTool) operations() []string {
	names := make([]string, 0, len(t.ops))
	for k := range t.ops {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func stateKey(op string, args map[string]any) (string, error) {
	key, _ := args["key"].(string)
	if key == "" {
		return "", fmt.Errorf("%s requires a key", op)
	}
	return key, nil
}

func getState(tc *core.ToolContext, args map[string]any) (any, error) {
	key, err := stateKey("get_state", args)
	if err != nil {
		return nil, err
	}

	v, ok := tc.GetState(key)

	return map[string]any{"key": key, "exists": ok, "value": v}, nil
}

func setState(tc *core.ToolContext, args map[string]any) (any, error) {
	key, err := stateKey("set_state", args)
	if err != nil {
		return nil, err
	}

	tc.SetState(key, args["value"])

	return map[string]any{"key": key, "value": args["value"], "success": true}, nil
}

func escalate(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.Escalate()
	return map[string]any{"success": true}, nil
}

func skipSummarization(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.SkipSummarization()
	return map[string]any{"success": true}, nil
}

const previewLen = 100

// sessionHistory returns one line per event: author plus a short rendering of
// each part.
func sessionHistory(tc *core.ToolContext, _ map[string]any) (any, error) {
	history := tc.GetSessionHistory()

	lines := make([]map[string]any, 0, len(history))
	for _, ev := range history {
		line := map[string]any{"id": ev.ID, "author": ev.Author}
		if ev.Content != nil {
			var parts []string
			for _, p := range ev.Content.Parts {
				parts = append(parts, summarizePart(p))
			}
			line["parts"] = parts
		}
		lines = append(lines, line)
	}

	return map[string]any{"events": lines, "count": len(lines)}, nil
}

func summarizePart(p core.Part) string {
	switch v := p.(type) {
	case core.TextPart:
		if len(v.Text) > previewLen {
			return "text: " + v.Text[:previewLen] + "..."
		}
		return "text: " + v.Text
	case core.FunctionCallPart:
		return "call: " + v.FunctionCall.Name
	case core.FunctionResponsePart:
		return "response: " + v.FunctionResponse.Name
	default:
		return fmt.Sprintf("%T", p)
	}
}
