package flow

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/model"
)

// Options configures a BaseFlow.
type Options struct {
	// Executor runs the tool calls of one model turn.
	Executor FunctionExecutor
}

// BaseFlow is a single-agent flow implementation that supports a
// request -> LLM -> (optional tool loop) cycle with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	executor           FunctionExecutor
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
}

// NewBaseFlow creates a flow without processors.
func NewBaseFlow(agent FlowAgent, optFns ...func(o *Options)) *BaseFlow {
	opts := Options{
		Executor: NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 4, PreserveOrder: true}),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &BaseFlow{
		agent:              agent,
		executor:           opts.Executor,
		requestProcessors:  []RequestProcessor{},
		responseProcessors: []ResponseProcessor{},
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed for each model chunk.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// Run executes model turns until the agent produces a final answer or a tool
// requests the turn to end. Model and processor failures are returned.
func (f *BaseFlow) Run(runCtx *core.RunContext) error {
	for {
		last, stop, err := f.runOnce(runCtx)
		if err != nil {
			return err
		}

		if last == nil || stop {
			return nil
		}

		// A function response needs another model turn.
		if len(last.GetFunctionResponses()) > 0 {
			continue
		}

		if last.IsPartial() {
			runCtx.LogWarn("flow.turn.partial_end", "agent", f.agent.GetName(), "event_id", last.ID)
			return nil
		}

		if last.IsFinalResponse() {
			return nil
		}
	}
}

// runOnce performs one model turn including any tool executions. It returns
// the last emitted event and whether a tool asked to end the turn.
func (f *BaseFlow) runOnce(runCtx *core.RunContext) (*core.Event, bool, error) {
	if runCtx.SessionStore != nil {
		if err := runCtx.RefreshSession(); err != nil {
			runCtx.LogWarn("flow.session.refresh_failed", "agent", f.agent.GetName(), "error", err.Error())
		}
	}

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(); err != nil {
			return nil, false, err
		}
	}

	req := new(model.Request)

	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(runCtx, req, f.agent); err != nil {
			return nil, false, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	ctx, span := tracing.StartSpan(runCtx.Context, "flow.model_call",
		tracing.String("agent", f.agent.GetName()),
		tracing.Int("contents", len(req.Contents)),
		tracing.Int("tools", len(req.Tools)),
	)
	defer span.End()

	respCh, errCh := f.agent.GetLLM().Generate(ctx, *req)

	var (
		mu        sync.Mutex
		lastEvent *core.Event
		stop      bool
	)

	track := func(ev core.Event) {
		mu.Lock()
		defer mu.Unlock()
		lastEvent = &ev
		if boolValue(ev.Actions.Escalate) || boolValue(ev.Actions.SkipSummarization) {
			stop = true
		}
	}

	for resp := range respCh {
		for _, processor := range f.responseProcessors {
			if err := processor.ProcessResponse(runCtx, &resp, f.agent); err != nil {
				tracing.RecordError(span, err)
				return lastEvent, false, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
			}
		}

		ev := f.newModelEvent(runCtx, resp)

		if err := runCtx.Deliver(ev); err != nil {
			return lastEvent, false, err
		}

		track(ev)

		if ev.IsPartial() {
			continue
		}

		if fnCalls := ev.GetFunctionCalls(); len(fnCalls) > 0 {
			f.executor.Execute(runCtx, f.agent, f.agent.GetTools(), fnCalls, func(respEv core.Event) error {
				if err := runCtx.Deliver(respEv); err != nil {
					return err
				}
				track(respEv)
				return nil
			})
		}
	}

	if err, ok := <-errCh; ok && err != nil {
		tracing.RecordError(span, err)
		return lastEvent, false, fmt.Errorf("model %s: %w", f.agent.GetLLM().Info().Name, err)
	}

	if err := runCtx.Err(); err != nil {
		return lastEvent, false, err
	}

	tracing.SetOK(span)

	return lastEvent, stop, nil
}

// newModelEvent converts a model response into an event. Function calls get
// stable ids; a final answer is stored under the agent's output key.
func (f *BaseFlow) newModelEvent(runCtx *core.RunContext, resp model.Response) core.Event {
	ev := core.NewEvent(runCtx.RunID, f.agent.GetName())

	content := core.Content{Role: resp.Content.Role, Parts: make([]core.Part, len(resp.Content.Parts))}
	if content.Role == "" {
		content.Role = core.RoleModel
	}

	for i, p := range resp.Content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok && fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = "call_" + core.NewID()
			p = fc
		}
		content.Parts[i] = p
	}

	partial := resp.Partial
	ev.Content = &content
	ev.Partial = &partial

	if !partial && len(ev.GetFunctionCalls()) == 0 {
		complete := true
		ev.TurnComplete = &complete

		if key := f.agent.GetOutputKey(); key != "" {
			ev.Actions.StateDelta = map[string]any{key: content.Text("")}
		}
	}

	return ev
}

func boolValue(b *bool) bool { return b != nil && *b }
