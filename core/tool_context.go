package core

import (
	"context"
	"maps"

	"github.com/hupe1980/agentforge/logging"
)

// ToolContext is handed to a tool for one function call. State writes and
// control signals are staged on it and copied onto the function response
// event by ApplyActions, so concurrent calls never share a delta.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string
	agentInfo      AgentInfo
	eventActions   EventActions

	*runLogger
}

// NewToolContext binds a tool context to runCtx and a function call id.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		agentInfo:      runCtx.Agent,
		runLogger:      withLogger(runCtx.Logger()),
	}
}

// Context returns the run's context.Context.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

func (tc *ToolContext) SessionID() string { return tc.runCtx.SessionID }

func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

func (tc *ToolContext) Logger() logging.Logger { return tc.runLogger.Logger() }

func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the calling agent.
func (tc *ToolContext) AgentName() string { return tc.agentInfo.Name }

func (tc *ToolContext) AgentType() string { return tc.agentInfo.Type }

// GetState returns a value staged by this call, else the run's view.
func (tc *ToolContext) GetState(k string) (any, bool) {
	if v, ok := tc.eventActions.StateDelta[k]; ok {
		return v, true
	}
	return tc.runCtx.GetState(k)
}

// SetState stages a state write.
func (tc *ToolContext) SetState(k string, v any) {
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[k] = v
}

// Actions returns the staged actions.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// SkipSummarization marks the response as final; the model is not called
// again for this turn.
func (tc *ToolContext) SkipSummarization() {
	b := true
	tc.eventActions.SkipSummarization = &b
}

// Escalate asks the enclosing loop agent to stop iterating.
func (tc *ToolContext) Escalate() {
	b := true
	tc.eventActions.Escalate = &b
	tc.LogInfo("tool.escalate.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
}

// GetSessionHistory returns the conversation so far.
func (tc *ToolContext) GetSessionHistory() []Event {
	if tc.runCtx.Session == nil {
		return nil
	}
	return tc.runCtx.Session.GetConversationHistory()
}

// RefreshSession reloads the run's session from its store.
func (tc *ToolContext) RefreshSession() error { return tc.runCtx.RefreshSession() }

// ApplyActions copies the staged actions onto ev.
func (tc *ToolContext) ApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, tc.eventActions.StateDelta)
	}

	if tc.eventActions.SkipSummarization != nil {
		ev.Actions.SkipSummarization = tc.eventActions.SkipSummarization
	}

	if tc.eventActions.Escalate != nil {
		ev.Actions.Escalate = tc.eventActions.Escalate
		tc.LogInfo("tool.escalate.applied", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
	}
}
