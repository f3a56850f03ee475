package agent

import (
	"fmt"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/flow"
	"github.com/hupe1980/agentforge/model"
	"github.com/hupe1980/agentforge/tool"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Description        string
	Instruction        Instruction
	GenerateConfig     *model.GenerateConfig
	EnableStreaming    bool
	OutputKey          string
	MaxHistoryMessages int
	Tools              []tool.Tool
	FlowOptions        []func(o *flow.Options)
}

// ModelAgent is the leaf agent: one model, an instruction, optional tools,
// an optional output key and optional sampling parameters. Each Run drives
// a flow.SingleAgentFlow.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	generateConfig     *model.GenerateConfig
	tools              map[string]tool.Tool
	enableStreaming    bool
	outputKey          string
	maxHistoryMessages int
	flowOptions        []func(o *flow.Options)
}

// NewModelAgent creates a leaf agent. Without an instruction option the
// agent has no system prompt.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		MaxHistoryMessages: 50,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		generateConfig:     opts.GenerateConfig,
		tools:              make(map[string]tool.Tool, len(opts.Tools)),
		enableStreaming:    opts.EnableStreaming,
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		flowOptions:        opts.FlowOptions,
	}

	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	a.RegisterTools(opts.Tools...)

	return a
}

// RegisterTool adds a tool. A later tool with the same name replaces an
// earlier one.
func (a *ModelAgent) RegisterTool(t tool.Tool) {
	a.tools[t.Name()] = t
}

// RegisterTools adds multiple tools in order.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.RegisterTool(t)
	}
}

// HasTool checks if a tool is registered with the agent.
func (a *ModelAgent) HasTool(name string) bool {
	_, exists := a.tools[name]
	return exists
}

// GetName returns the agent's name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetLLM returns the language model instance.
func (a *ModelAgent) GetLLM() model.Model { return a.llm }

// GetTools returns a copy of the registered tools.
func (a *ModelAgent) GetTools() map[string]tool.Tool {
	tools := make(map[string]tool.Tool, len(a.tools))
	for name, t := range a.tools {
		tools[name] = t
	}
	return tools
}

// GetGenerateConfig returns the sampling parameters (nil when unset).
func (a *ModelAgent) GetGenerateConfig() *model.GenerateConfig { return a.generateConfig }

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.enableStreaming }

// GetOutputKey returns the session state key for saving responses.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ResolveInstructions produces the final instruction string.
func (a *ModelAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// Run implements core.Agent by running a single-agent flow under this
// agent's identity.
func (a *ModelAgent) Run(runCtx *core.RunContext) error {
	rc := runCtx.WithAgent(a.Info())

	rc.LogDebug("agent.run.start", "agent", a.Name(), "run", rc.RunID, "tools", len(a.tools))

	if err := flow.NewSingleAgentFlow(a, a.flowOptions...).Run(rc); err != nil {
		rc.LogError("agent.run.error", "agent", a.Name(), "error", err.Error())
		return fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	rc.LogDebug("agent.run.complete", "agent", a.Name())

	return nil
}
