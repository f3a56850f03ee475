package tool

import "github.com/hupe1980/agentforge/core"

// exitLoopTool lets a model inside a loop agent end the loop early.
type exitLoopTool struct{}

// NewExitLoopTool constructs the exit_loop tool. Calling it escalates, which
// the enclosing LoopAgent treats as "stop iterating".
func NewExitLoopTool() Tool { return &exitLoopTool{} }

func (t *exitLoopTool) Name() string { return "exit_loop" }

func (t *exitLoopTool) Description() string {
	return "Call this only when the task is complete and no further iterations are needed."
}

func (t *exitLoopTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *exitLoopTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.Escalate()
	tc.SkipSummarization()
	return map[string]any{"exited": true}, nil
}
