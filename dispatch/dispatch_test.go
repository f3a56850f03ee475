package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/a2a"
	"github.com/hupe1980/agentforge/binding"
	"github.com/hupe1980/agentforge/blob"
	"github.com/hupe1980/agentforge/builder"
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/internal/testutil"
	"github.com/hupe1980/agentforge/model"
)

type fakePeer struct {
	resp  *a2a.Response
	err   error
	panic bool
	sent  []string
}

func (f *fakePeer) Send(_ context.Context, _, text string) (*a2a.Response, error) {
	if f.panic {
		panic("peer exploded")
	}
	f.sent = append(f.sent, text)
	return f.resp, f.err
}

type fakeHosted struct {
	events  []map[string]any
	err     error
	message string
	userID  string
}

func (f *fakeHosted) StreamQuery(_ context.Context, _, message, userID string) (<-chan map[string]any, <-chan error) {
	f.message, f.userID = message, userID

	events := make(chan map[string]any, len(f.events))
	errs := make(chan error, 1)
	for _, ev := range f.events {
		events <- ev
	}
	if f.err != nil {
		errs <- f.err
	}
	close(events)
	close(errs)

	return events, errs
}

type fixture struct {
	docs   docstore.Store
	llm    *model.MockModel
	peer   *fakePeer
	hosted *fakeHosted
	d      *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, docstore.NewMemoryStore())
}

func newFixtureWith(t *testing.T, docs docstore.Store) *fixture {
	t.Helper()

	ctx := context.Background()
	f := &fixture{
		docs:   docs,
		llm:    model.NewMockModel("gpt-4o", "openai"),
		peer:   &fakePeer{},
		hosted: &fakeHosted{},
	}

	require.NoError(t, f.docs.Set(ctx, docstore.MessagePath("c1", "u1"), map[string]any{
		"participant": "user:abc",
		"parts":       []any{map[string]any{"text": "Hello"}},
	}))
	require.NoError(t, f.docs.Set(ctx, docstore.MessagePath("c1", "a1"), map[string]any{
		"participant":     "assistant:m1",
		"parentMessageId": "u1",
		"status":          "pending",
	}))
	require.NoError(t, f.docs.Set(ctx, docstore.ModelPath("m1"), map[string]any{
		"provider":    "openai",
		"modelString": "gpt-4o",
	}))

	b := builder.New(f.docs, func(o *builder.Options) {
		o.Bindings = binding.NewResolver(func(o *binding.ResolverOptions) {
			o.Getenv = func(string) string { return "sk-test" }
		})
		o.Models = binding.NewFactory(func(o *binding.FactoryOptions) {
			o.Override = func(*binding.Binding) (model.Model, error) { return f.llm, nil }
		})
	})

	f.d = New(f.docs, blob.NewMemoryStore(), func(o *Options) {
		o.Builder = b
		o.Peer = f.peer
		o.Hosted = f.hosted
	})

	return f
}

func (f *fixture) message(t *testing.T) map[string]any {
	t.Helper()
	m, err := f.docs.Get(context.Background(), docstore.MessagePath("c1", "a1"))
	require.NoError(t, err)
	return m
}

func (f *fixture) events(t *testing.T) []map[string]any {
	t.Helper()
	evs, err := f.docs.ListEvents(context.Background(), docstore.MessagePath("c1", "a1"))
	require.NoError(t, err)
	return evs
}

func TestHandle_ModelOnlyRun(t *testing.T) {
	f := newFixture(t)
	f.llm.Script(model.Response{Content: core.NewTextContent(core.RoleModel, "Hi there")})

	res, err := f.d.Handle(context.Background(), Invocation{ChatID: "c1", AssistantMessageID: "a1", ModelID: "m1", UserID: "u"})
	require.NoError(t, err)
	assert.Empty(t, res.ErrorDetails)
	assert.Equal(t, []map[string]any{{"text": "Hi there"}}, res.FinalParts)

	require.Len(t, f.llm.Requests(), 1)

	msg := f.message(t)
	assert.Equal(t, docstore.StatusCompleted, msg["status"])
	assert.Equal(t, []any{map[string]any{"text": "Hi there"}}, msg["parts"])
	assert.Equal(t, []any{}, msg["errorDetails"])
	assert.Equal(t, float64(5), msg["inputCharacterCount"])
	assert.NotEmpty(t, msg["completedTimestamp"])

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, float64(0), evs[0]["eventIndex"])
	assert.Contains(t, evs[0]["author"], "model_run_m1")
}

func TestHandle_LocalAgent(t *testing.T) {
	f := newFixture(t)
	f.llm.Script(
		model.Response{Content: core.NewTextContent(core.RoleModel, "draft")},
		model.Response{Content: core.NewTextContent(core.RoleModel, "final")},
	)

	require.NoError(t, f.docs.Set(context.Background(), docstore.AgentPath("ag1"), map[string]any{
		"name":      "Pipeline",
		"agentType": "SequentialAgent",
		"childAgents": []any{
			map[string]any{"name": "writer", "agentType": "Agent", "modelId": "m1"},
			map[string]any{"name": "editor", "agentType": "Agent", "modelId": "m1"},
		},
	}))

	res, err := f.d.Handle(context.Background(), Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "ag1"})
	require.NoError(t, err)
	assert.Empty(t, res.ErrorDetails)
	assert.Equal(t, []map[string]any{{"text": "final"}}, res.FinalParts)
	assert.Len(t, f.events(t), 2)
}

func TestHandle_A2A(t *testing.T) {
	ctx := context.Background()

	t.Run("result", func(t *testing.T) {
		f := newFixture(t)
		f.peer.resp = &a2a.Response{Result: map[string]any{
			"artifacts": []any{map[string]any{"parts": []any{map[string]any{"text": "pong"}}}},
		}}
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("peer"), map[string]any{"platform": "a2a", "endpointUrl": "https://peer/rpc"}))

		res, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "peer"})
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"text": "pong"}}, res.FinalParts)

		require.Len(t, f.peer.sent, 1)
		assert.Equal(t, "user: Hello", f.peer.sent[0])

		evs := f.events(t)
		require.Len(t, evs, 1)
		assert.Equal(t, "a2a_unary_result", evs[0]["type"])
		assert.Equal(t, float64(0), evs[0]["eventIndex"])
		assert.Equal(t, docstore.StatusCompleted, f.message(t)["status"])
	})

	t.Run("rpc error", func(t *testing.T) {
		f := newFixture(t)
		f.peer.resp = &a2a.Response{Error: &a2a.RPCError{Code: -32000, Message: "busy"}}
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("peer"), map[string]any{"platform": "a2a", "endpointUrl": "https://peer/rpc"}))

		res, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "peer"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A2A RPC error: code -32000: busy"}, res.ErrorDetails)
		assert.Equal(t, docstore.StatusError, f.message(t)["status"])
	})

	t.Run("transport failure", func(t *testing.T) {
		f := newFixture(t)
		f.peer.err = errors.New("connection refused")
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("peer"), map[string]any{"platform": "a2a", "endpointUrl": "https://peer/rpc"}))

		res, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "peer"})
		require.NoError(t, err)
		assert.Equal(t, []string{"A2A communication failed: connection refused"}, res.ErrorDetails)
		assert.Empty(t, f.events(t))
	})

	t.Run("missing endpoint", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("peer"), map[string]any{"name": "peer", "platform": "a2a"}))

		_, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "peer"})
		require.NoError(t, err)

		msg := f.message(t)
		assert.Equal(t, docstore.StatusError, msg["status"])
		details := msg["errorDetails"].([]any)
		require.Len(t, details, 1)
		assert.Contains(t, details[0], "Task handler exception for message a1: ConfigError - ")
		assert.Contains(t, details[0], "endpointUrl")
	})
}

func TestHandle_Hosted(t *testing.T) {
	ctx := context.Background()

	t.Run("deployed", func(t *testing.T) {
		f := newFixture(t)
		f.hosted.events = []map[string]any{
			{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "thinking"}}}, "partial": true},
			{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "answer"}}}},
		}
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("h1"), map[string]any{
			"platform":             "google_vertex",
			"vertexAiResourceName": "projects/p/reasoningEngines/1",
			"deploymentStatus":     "deployed",
		}))

		res, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "h1", UserID: "user-7"})
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{{"text": "answer"}}, res.FinalParts)
		assert.Equal(t, "user: Hello", f.hosted.message)
		assert.Equal(t, "user-7", f.hosted.userID)
		assert.Len(t, f.events(t), 2)
	})

	t.Run("stream error keeps events", func(t *testing.T) {
		f := newFixture(t)
		f.hosted.events = []map[string]any{{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "partial answer"}}}}}
		f.hosted.err = errors.New("stream reset")
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("h1"), map[string]any{
			"platform":             "hosted",
			"vertexAiResourceName": "projects/p/reasoningEngines/1",
			"deploymentStatus":     "deployed",
		}))

		res, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "h1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"Agent run failed: stream reset"}, res.ErrorDetails)
		assert.Equal(t, []map[string]any{{"text": "partial answer"}}, res.FinalParts)
		assert.Len(t, f.events(t), 1)
	})

	t.Run("not deployed", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.docs.Set(ctx, docstore.AgentPath("h1"), map[string]any{
			"platform":             "google_vertex",
			"vertexAiResourceName": "projects/p/reasoningEngines/1",
			"deploymentStatus":     "failed",
		}))

		_, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "h1"})
		require.NoError(t, err)

		details := f.message(t)["errorDetails"].([]any)
		require.Len(t, details, 1)
		assert.Contains(t, details[0], "agent h1 is not successfully deployed")
	})
}

// cancellingHosted emits one event and then cancels the caller's context,
// like a client that goes away mid-stream.
type cancellingHosted struct {
	cancel context.CancelFunc
}

func (h *cancellingHosted) StreamQuery(ctx context.Context, _, _, _ string) (<-chan map[string]any, <-chan error) {
	events := make(chan map[string]any)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(events)

		events <- map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "half"}}}}
		h.cancel()
		<-ctx.Done()
		errs <- ctx.Err()
	}()

	return events, errs
}

func TestHandle_CancelledRunIsTerminal(t *testing.T) {
	docs, err := docstore.OpenSQLite(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	f := newFixtureWith(t, docs)
	require.NoError(t, docs.Set(context.Background(), docstore.AgentPath("h1"), map[string]any{
		"platform":             "hosted",
		"vertexAiResourceName": "projects/p/reasoningEngines/1",
		"deploymentStatus":     "deployed",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.d.opts.Hosted = &cancellingHosted{cancel: cancel}

	res, err := f.d.Handle(ctx, Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "h1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ErrorDetails)
	assert.Contains(t, res.ErrorDetails[0], "context canceled")

	msg := f.message(t)
	assert.Equal(t, docstore.StatusError, msg["status"])
	assert.NotEmpty(t, msg["completedTimestamp"])
	assert.NotEmpty(t, msg["errorDetails"])
	assert.Len(t, f.events(t), 1)
}

func TestHandle_NoExecutionPath(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Handle(context.Background(), Invocation{ChatID: "c1", AssistantMessageID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"No valid execution path for agentId: , modelId: "}, res.ErrorDetails)
	assert.Equal(t, docstore.StatusError, f.message(t)["status"])
}

func TestHandle_PanicIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.peer.panic = true
	require.NoError(t, f.docs.Set(context.Background(), docstore.AgentPath("peer"), map[string]any{"platform": "a2a", "endpointUrl": "https://peer/rpc"}))

	res, err := f.d.Handle(context.Background(), Invocation{ChatID: "c1", AssistantMessageID: "a1", AgentID: "peer"})
	require.NoError(t, err)
	require.Len(t, res.ErrorDetails, 1)
	assert.Equal(t, "Task handler exception for message a1: Panic - panic: peer exploded", res.ErrorDetails[0])
	assert.Equal(t, docstore.StatusError, f.message(t)["status"])
}

func TestHandle_MissingMessage(t *testing.T) {
	f := newFixture(t)

	res, err := f.d.Handle(context.Background(), Invocation{ChatID: "c1", AssistantMessageID: "nope", ModelID: "m1"})
	require.Error(t, err)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, res.ErrorDetails[0], "NotFoundError")
}

func TestHandle_ModelMissing(t *testing.T) {
	f := newFixture(t)

	_, err := f.d.Handle(context.Background(), Invocation{ChatID: "c1", AssistantMessageID: "a1", ModelID: "zzz"})
	require.NoError(t, err)

	details := f.message(t)["errorDetails"].([]any)
	require.Len(t, details, 1)
	assert.Contains(t, details[0], "NotFoundError")
	assert.Contains(t, details[0], "participant config not found for ID zzz")
}

func TestFinalParts(t *testing.T) {
	events := []map[string]any{
		{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "first"}}}},
		{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"function_call": map[string]any{"name": "search"}}}}},
		{"content": map[string]any{"role": "tool", "parts": []any{map[string]any{"function_response": map[string]any{"name": "search"}}}}},
		{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": "streaming"}}}, "partial": true},
		{"type": "control"},
	}

	assert.Equal(t, []map[string]any{{"text": "first"}}, FinalParts(events))
	assert.Nil(t, FinalParts(events[1:]))
	assert.Nil(t, FinalParts(nil))
}

func TestHostedMessage(t *testing.T) {
	assert.Equal(t, "user: a\nmodel: b", HostedMessage(core.Content{Parts: []core.Part{
		core.TextPart{Text: "user: a"}, core.TextPart{Text: ""}, core.TextPart{Text: "model: b"},
	}}))

	assert.Equal(t, "[Image Content Provided (2)]", HostedMessage(core.Content{Parts: []core.Part{
		core.FilePart{File: core.FilePartFile{URI: "mem://b/1.png"}},
		core.FilePart{File: core.FilePartFile{Bytes: "aGk=", MimeType: "image/png"}},
	}}))

	assert.Empty(t, HostedMessage(core.Content{}))
}

func TestCollector_DropsUnserializableEvents(t *testing.T) {
	docs := docstore.NewMemoryStore()
	c := NewCollector(docs, nil)

	bad := testutil.NewEventBuilder().Invocation("inv").ModelText("lost").Grounding(make(chan int)).Build()
	good := testutil.NewEventBuilder().Invocation("inv").ModelText("done").Build()
	call := testutil.NewEventBuilder().Invocation("inv").FunctionCall("search", `{}`).Build()

	events := make(chan core.Event, 3)
	errs := make(chan error)
	events <- bad
	events <- good
	events <- call
	close(events)
	close(errs)

	res := c.CollectEvents(context.Background(), docstore.MessagePath("c1", "a1"), events, errs)
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0].Message, "dropping event 0")
	assert.Equal(t, []map[string]any{{"text": "done"}}, res.FinalParts)

	evs, err := docs.ListEvents(context.Background(), docstore.MessagePath("c1", "a1"))
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, float64(1), evs[0]["eventIndex"])
	assert.Equal(t, float64(2), evs[1]["eventIndex"])
}
