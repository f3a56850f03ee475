package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/logging"
	"github.com/hupe1980/agentforge/model"
	"github.com/hupe1980/agentforge/session"
	"github.com/hupe1980/agentforge/tool"
)

// errModel fails every Generate call.
type errModel struct{ err error }

func (m *errModel) Generate(context.Context, model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response)
	errCh := make(chan error, 1)
	errCh <- m.err
	close(respCh)
	close(errCh)
	return respCh, errCh
}

func (m *errModel) Info() model.Info { return model.Info{Name: "err-model", Provider: "mock"} }

// runFlow executes f with a persisting consumer the way the runner does and
// returns every event in emission order.
func runFlow(t *testing.T, f Flow, maxModelCalls int) ([]core.Event, *session.InMemoryStore, error) {
	t.Helper()

	store := session.NewInMemoryStore()
	sess, _ := store.Create("sess")
	userContent := core.NewTextContent(core.RoleUser, "hello")
	_ = store.AppendEvent("sess", core.NewUserContentEvent("run", &userContent))

	emit := make(chan core.Event, 16)
	resume := make(chan struct{}, 1)

	rc := core.NewRunContext(context.Background(), "sess", "run", core.AgentInfo{Name: "leaf", Type: core.AgentTypeLeaf},
		userContent, maxModelCalls, emit, resume, sess, store, logging.NoOpLogger{})

	done := make(chan struct{})
	var events []core.Event

	go func() {
		defer close(done)
		for ev := range emit {
			events = append(events, ev)
			if ev.IsPartial() {
				continue
			}
			if len(ev.Actions.StateDelta) > 0 {
				_ = store.ApplyDelta("sess", ev.Actions.StateDelta)
			}
			_ = store.AppendEvent("sess", ev)
			resume <- struct{}{}
		}
	}()

	err := f.Run(rc)
	close(emit)
	<-done

	return events, store, err
}

func TestSingleAgentFlow_FinalAnswer(t *testing.T) {
	mockModel := model.NewMockModel("test-model", "mock")
	mockModel.AddResponse("hello", "Hello! This is a test response.")

	agent := &teAgent{name: "leaf", llm: mockModel, instr: "You are a test assistant.", outputKey: "answer"}

	events, store, err := runFlow(t, NewSingleAgentFlow(agent), 0)
	if err != nil {
		t.Fatalf("flow failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event got %d", len(events))
	}
	if !events[0].IsFinalModelAnswer() || events[0].TurnComplete == nil {
		t.Fatalf("expected a complete final answer: %+v", events[0])
	}

	sess, _ := store.Get("sess")
	if v, _ := sess.GetState("answer"); v != "Hello! This is a test response." {
		t.Fatalf("output key not stored: %v", v)
	}

	reqs := mockModel.Requests()
	if len(reqs) != 1 || reqs[0].Contents[0].Role != core.RoleSystem {
		t.Fatalf("expected system content first: %+v", reqs)
	}
}

func TestSingleAgentFlow_ToolLoop(t *testing.T) {
	mockModel := model.NewMockModel("test-model", "mock")
	mockModel.Script(
		model.Response{Content: core.Content{Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{Name: "lookup", Arguments: `{"q":"go"}`}},
		}}},
		model.Response{Content: core.NewTextContent(core.RoleModel, "found it")},
	)

	lookup := tool.NewFunctionTool("lookup", "Lookup", map[string]any{
		"type":       "object",
		"properties": map[string]any{"q": map[string]any{"type": "string"}},
	}, func(tc *core.ToolContext, args map[string]any) (any, error) {
		tc.SetState("last_query", args["q"])
		return "result for " + args["q"].(string), nil
	})

	agent := &teAgent{name: "leaf", llm: mockModel, tools: map[string]tool.Tool{"lookup": lookup}}

	events, store, err := runFlow(t, NewSingleAgentFlow(agent), 0)
	if err != nil {
		t.Fatalf("flow failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected call, response and answer, got %d", len(events))
	}

	call := events[0].GetFunctionCalls()
	resp := events[1].GetFunctionResponses()
	if len(call) != 1 || len(resp) != 1 || call[0].ID == "" || call[0].ID != resp[0].ID {
		t.Fatalf("function call/response ids must match: %+v %+v", call, resp)
	}
	if events[2].Content.Text("") != "found it" {
		t.Fatalf("unexpected final answer: %+v", events[2].Content)
	}

	sess, _ := store.Get("sess")
	if v, _ := sess.GetState("last_query"); v != "go" {
		t.Fatalf("tool state delta not persisted: %v", v)
	}

	reqs := mockModel.Requests()
	if len(reqs) != 2 || len(reqs[0].Tools) != 1 {
		t.Fatalf("unexpected requests: %d", len(reqs))
	}
	last := reqs[1].Contents[len(reqs[1].Contents)-1]
	if last.Role != core.RoleTool {
		t.Fatalf("second turn must see the tool response, got role %q", last.Role)
	}
}

func TestSingleAgentFlow_ExitLoopStopsTurn(t *testing.T) {
	mockModel := model.NewMockModel("test-model", "mock")
	mockModel.Script(model.Response{Content: core.Content{Parts: []core.Part{
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "exit_loop"}},
	}}})

	agent := &teAgent{name: "leaf", llm: mockModel, tools: map[string]tool.Tool{"exit_loop": tool.NewExitLoopTool()}}

	events, _, err := runFlow(t, NewSingleAgentFlow(agent), 0)
	if err != nil {
		t.Fatalf("flow failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected the turn to stop after exit_loop, got %d events", len(events))
	}
	if events[1].Actions.Escalate == nil || !*events[1].Actions.Escalate {
		t.Fatalf("escalate missing on function response")
	}
	if len(mockModel.Requests()) != 1 {
		t.Fatalf("model must not be called again")
	}
}

func TestSingleAgentFlow_ModelCallLimit(t *testing.T) {
	mockModel := model.NewMockModel("test-model", "mock")
	mockModel.Script(model.Response{Content: core.Content{Parts: []core.Part{
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "noop"}},
	}}})

	agent := &teAgent{name: "leaf", llm: mockModel, tools: map[string]tool.Tool{"noop": &teMockTool{name: "noop", result: "ok"}}}

	_, _, err := runFlow(t, NewSingleAgentFlow(agent), 1)
	if err == nil || !strings.Contains(err.Error(), "exceeded max model calls") {
		t.Fatalf("expected limiter error, got %v", err)
	}
}

func TestSingleAgentFlow_ModelError(t *testing.T) {
	agent := &teAgent{name: "leaf", llm: &errModel{err: model.ErrRateLimited}}

	events, _, err := runFlow(t, NewSingleAgentFlow(agent), 0)
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestSingleAgentFlow_StreamingPartials(t *testing.T) {
	mockModel := model.NewMockModel("test-model", "mock")
	mockModel.AddResponse("hello", "hey")

	agent := &teAgent{name: "leaf", llm: mockModel, stream: true}

	events, store, err := runFlow(t, NewSingleAgentFlow(agent), 0)
	if err != nil {
		t.Fatalf("flow failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 3 partials and a final event, got %d", len(events))
	}
	if !events[0].IsPartial() || events[3].IsPartial() {
		t.Fatalf("unexpected partial flags")
	}

	sess, _ := store.Get("sess")
	if n := len(sess.GetEvents()); n != 2 {
		t.Fatalf("only the user and final events are persisted, got %d", n)
	}
}
