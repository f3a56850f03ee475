package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventActions are the side effects an event asks the runner to apply. Nil
// pointers mean "not set".
type EventActions struct {
	SkipSummarization *bool          `json:"skip_summarization,omitempty"`
	StateDelta        map[string]any `json:"state_delta,omitempty"`
	Escalate          *bool          `json:"escalate,omitempty"`
}

// Event is one step of a run as seen by the runner and the event collector.
// Content is nil for pure control events. Events are immutable once emitted;
// the collector serializes them with ToMap.
type Event struct {
	ID                 string       `json:"id"`
	InvocationID       string       `json:"invocation_id"`
	Author             string       `json:"author"`
	Branch             *string      `json:"branch,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	Content            *Content     `json:"content,omitempty"`
	Actions            EventActions `json:"actions"`
	Partial            *bool        `json:"partial,omitempty"`
	TurnComplete       *bool        `json:"turn_complete,omitempty"`
	LongRunningToolIDs []string     `json:"long_running_tool_ids,omitempty"`
	GroundingMetadata  any          `json:"grounding_metadata,omitempty"`
}

// NewEvent returns an empty event stamped with a fresh id and the current UTC time.
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
	}
}

func newContentEvent(invocationID, author, role string, parts ...Part) Event {
	e := NewEvent(invocationID, author)
	e.Content = &Content{Role: role, Parts: parts}
	return e
}

// NewMessageEvent is a model-role text event.
func NewMessageEvent(author, message string) Event {
	return newContentEvent("", author, RoleModel, TextPart{Text: message})
}

func NewUserMessageEvent(invocationID, message string) Event {
	return newContentEvent(invocationID, "user", RoleUser, TextPart{Text: message})
}

// NewUserContentEvent wraps content as the user's turn. It is how the runner
// feeds the reconstructed history into a run.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, "user")
	e.Content = content
	return e
}

func NewFunctionCallEvent(author, functionName, args string) Event {
	return newContentEvent("", author, RoleModel,
		FunctionCallPart{FunctionCall: FunctionCall{Name: functionName, Arguments: args}})
}

// NewFunctionResponseEvent carries a tool result; a non-nil err is recorded in
// the response's Error field instead of the result.
func NewFunctionResponseEvent(author, id, functionName string, result any, err error) Event {
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	return newContentEvent("", author, RoleTool, FunctionResponsePart{FunctionResponse: fr})
}

func NewID() string { return uuid.NewString() }

func (e Event) IsPartial() bool { return e.Partial != nil && *e.Partial }

// GetFunctionCalls returns the call parts in order.
func (e Event) GetFunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range e.parts() {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns the response parts in order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	var out []FunctionResponse
	for _, p := range e.parts() {
		if fr, ok := p.(FunctionResponsePart); ok {
			out = append(out, fr.FunctionResponse)
		}
	}
	return out
}

func (e Event) parts() []Part {
	if e.Content == nil {
		return nil
	}
	return e.Content.Parts
}

// IsFinalResponse reports whether the flow can stop after this event.
func (e Event) IsFinalResponse() bool {
	if (e.Actions.SkipSummarization != nil && *e.Actions.SkipSummarization) || len(e.LongRunningToolIDs) > 0 {
		return true
	}
	return !e.IsPartial() && len(e.GetFunctionCalls()) == 0 && len(e.GetFunctionResponses()) == 0
}

// IsFinalModelAnswer reports whether the event is a complete model-authored
// answer: model role, not partial and without function-call parts.
func (e Event) IsFinalModelAnswer() bool {
	if e.Content == nil || !IsModelRole(e.Content.Role) || e.IsPartial() {
		return false
	}
	return len(e.GetFunctionCalls()) == 0
}

// ToMap converts the event into a JSON-safe map. It fails when any payload
// (e.g. a tool result) cannot be serialized.
func (e Event) ToMap() (map[string]any, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("serialize event %s: %w", e.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("serialize event %s: %w", e.ID, err)
	}
	return m, nil
}
