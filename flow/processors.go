package flow

import (
	"fmt"
	"sort"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/internal/util"
	"github.com/hupe1980/agentforge/model"
)

// InstructionsProcessor resolves the agent instruction and renders it as a
// template against the current session state.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets req.Instructions.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	instructions, err := agent.ResolveInstructions(runCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	runCtx.LogDebug("flow.instruction.resolved", "agent", agent.GetName(), "length", len(instructions))

	state := map[string]any{}
	if runCtx.Session != nil {
		state = runCtx.Session.Clone().State
	}
	for k, v := range runCtx.StateDelta {
		state[k] = v
	}

	req.Instructions, err = util.RenderTemplate(instructions, state)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return nil
}

// ContentsProcessor builds the message list: the system instruction followed
// by the most recent conversation history. Without a session history the
// run's user content is used.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets req.Contents.
func (p *ContentsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error {
	var contents []core.Content

	if req.Instructions != "" {
		contents = append(contents, core.NewTextContent(core.RoleSystem, req.Instructions))
	}

	var history []core.Event
	if runCtx.Session != nil {
		history = runCtx.Session.GetConversationHistory()
		if limit := agent.MaxHistoryMessages(); limit > 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
	}

	added := 0
	for _, ev := range history {
		if ev.Content != nil && len(ev.Content.Parts) > 0 {
			contents = append(contents, *ev.Content)
			added++
		}
	}

	if added == 0 && len(runCtx.UserContent.Parts) > 0 {
		contents = append(contents, runCtx.UserContent)
	}

	req.Contents = contents

	return nil
}

// GenerateConfigProcessor copies the agent's sampling parameters and
// streaming preference into the request.
type GenerateConfigProcessor struct{}

// NewGenerateConfigProcessor creates a new generation config processor.
func NewGenerateConfigProcessor() *GenerateConfigProcessor { return &GenerateConfigProcessor{} }

// Name returns the processor's identifier.
func (p *GenerateConfigProcessor) Name() string { return "generate_config" }

// ProcessRequest sets req.Config and req.Stream.
func (p *GenerateConfigProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	if cfg := agent.GetGenerateConfig(); !cfg.IsZero() {
		c := *cfg
		req.Config = &c
	}

	req.Stream = agent.IsStreamingEnabled()

	return nil
}

// ToolsProcessor declares the agent's tools, ordered by name.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets req.Tools.
func (p *ToolsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, agent FlowAgent) error {
	tools := agent.GetTools()
	if len(tools) == 0 {
		return nil
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	req.Tools = make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := tools[name]
		req.Tools = append(req.Tools, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	return nil
}
