// Package flow drives a single model-backed agent through the
// request -> model -> tool loop.
//
// A flow assembles a model.Request with ordered RequestProcessors, streams the
// model output as events, executes requested tools through a FunctionExecutor
// and repeats until the model produces a final answer, a tool asks to stop
// (escalate / skip summarization) or the per-run model call budget is spent.
package flow

import (
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/model"
	"github.com/hupe1980/agentforge/tool"
)

// Flow runs one agent turn to completion, emitting events through the
// RunContext.
type Flow interface {
	Run(runCtx *core.RunContext) error
}

// FlowAgent is the view of an agent a flow needs.
type FlowAgent interface {
	// GetName returns the agent's unique name; it is used as event author.
	GetName() string

	// GetLLM returns the language model instance.
	GetLLM() model.Model

	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the registered tools keyed by name.
	GetTools() map[string]tool.Tool

	// GetGenerateConfig returns optional sampling parameters (may be nil).
	GetGenerateConfig() *model.GenerateConfig

	// IsStreamingEnabled returns whether partial responses are requested.
	IsStreamingEnabled() bool

	// GetOutputKey returns the session state key receiving the final answer.
	GetOutputKey() string

	// MaxHistoryMessages bounds the conversation history sent to the model.
	MaxHistoryMessages() int
}

// RequestProcessor processes the request before sending it to the LLM.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request before model execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes a model response chunk before it is emitted.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse may rewrite the response in place.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
