package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/hupe1980/agentforge/definition"
	"github.com/hupe1980/agentforge/docstore"
)

// AgentDoc builds agent definition documents.
//
//	doc := testutil.Sequential("Pipeline", testutil.Leaf("Writer", "m1"), testutil.Leaf("Editor", "m1")).Build()
type AgentDoc struct {
	doc map[string]any
}

// Leaf starts an "Agent" definition bound to modelID.
func Leaf(name, modelID string) *AgentDoc {
	return &AgentDoc{doc: map[string]any{"name": name, "agentType": "Agent", "modelId": modelID}}
}

// Loop starts a "LoopAgent" definition running a leaf bound to modelID.
func Loop(name, modelID string, maxLoops any) *AgentDoc {
	return &AgentDoc{doc: map[string]any{"name": name, "agentType": "LoopAgent", "modelId": modelID, "maxLoops": maxLoops}}
}

// Sequential starts a "SequentialAgent" definition.
func Sequential(name string, children ...*AgentDoc) *AgentDoc {
	return composite(name, "SequentialAgent", children)
}

// Parallel starts a "ParallelAgent" definition.
func Parallel(name string, children ...*AgentDoc) *AgentDoc {
	return composite(name, "ParallelAgent", children)
}

func composite(name, agentType string, children []*AgentDoc) *AgentDoc {
	kids := make([]any, 0, len(children))
	for _, c := range children {
		kids = append(kids, c.Build())
	}
	return &AgentDoc{doc: map[string]any{"name": name, "agentType": agentType, "childAgents": kids}}
}

// Instruction sets the system instruction (chainable).
func (a *AgentDoc) Instruction(s string) *AgentDoc { return a.Set("systemInstruction", s) }

// OutputKey sets the output key (chainable).
func (a *AgentDoc) OutputKey(k string) *AgentDoc { return a.Set("outputKey", k) }

// Tools appends raw tool entries (chainable).
func (a *AgentDoc) Tools(tools ...map[string]any) *AgentDoc {
	list, _ := a.doc["tools"].([]any)
	for _, t := range tools {
		list = append(list, t)
	}
	a.doc["tools"] = list
	return a
}

// Set sets any field (chainable).
func (a *AgentDoc) Set(k string, v any) *AgentDoc { a.doc[k] = v; return a }

// Build returns the document.
func (a *AgentDoc) Build() map[string]any { return a.doc }

// MCPTool returns an "mcp" tool entry.
func MCPTool(serverURL, toolName string, auth map[string]any) map[string]any {
	t := map[string]any{"type": "mcp", "mcpServerUrl": serverURL, "mcpToolName": toolName}
	if auth != nil {
		t["auth"] = auth
	}
	return t
}

// LocalTool returns a locally registered tool entry.
func LocalTool(modulePath, className string) map[string]any {
	return map[string]any{"type": definition.ToolTypeCustomRepo, "module_path": modulePath, "class_name": className}
}

// Chat writes a linear conversation into a document store. User and
// assistant turns alternate starting with the user; message ids are m0, m1,
// and so on, each pointing at its predecessor.
type Chat struct {
	t     testing.TB
	docs  docstore.Store
	id    string
	count int
}

// NewChat returns a Chat writing below chats/{id}.
func NewChat(t testing.TB, docs docstore.Store, id string) *Chat {
	return &Chat{t: t, docs: docs, id: id}
}

// User appends a user message and returns its id.
func (c *Chat) User(text string) string {
	return c.add(map[string]any{
		"participant": "user",
		"parts":       []any{map[string]any{"text": text}},
	})
}

// Assistant appends an assistant message and returns its id. Empty text
// leaves the message pending, the state a dispatcher expects.
func (c *Chat) Assistant(text string) string {
	doc := map[string]any{"participant": "assistant"}
	if text != "" {
		doc["parts"] = []any{map[string]any{"text": text}}
		doc["status"] = docstore.StatusCompleted
	}
	return c.add(doc)
}

func (c *Chat) add(doc map[string]any) string {
	c.t.Helper()

	id := fmt.Sprintf("m%d", c.count)
	if c.count > 0 {
		doc["parentMessageId"] = fmt.Sprintf("m%d", c.count-1)
	}
	c.count++

	if err := c.docs.Set(context.Background(), docstore.MessagePath(c.id, id), doc); err != nil {
		c.t.Fatalf("seed chat message %s: %v", id, err)
	}

	return id
}
