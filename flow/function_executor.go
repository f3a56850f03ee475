package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/tool"
)

// FunctionExecutor runs the function calls of one model turn and emits one
// response event per call through emit. A panicking tool yields an error
// response; emit handles persistence and resume.
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, agent FlowAgent, toolRegistry map[string]tool.Tool, fnCalls []core.FunctionCall, emit func(core.Event) error)
}

type FunctionExecutorConfig struct {
	MaxParallel    int  // <1 runs every call of the batch at once
	PreserveOrder  bool // emit in call order instead of completion order
	LogStartEvents bool
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	agent FlowAgent,
	toolRegistry map[string]tool.Tool,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) {
	n := len(fnCalls)
	if n == 0 {
		return
	}

	if n == 1 {
		e.emit(runCtx, fnCalls[0], e.call(runCtx, agent, toolRegistry, fnCalls[0]), emit)
		return
	}

	limit := e.cfg.MaxParallel
	if limit <= 0 || limit > n {
		limit = n
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		ordered = make([]*core.Event, n)
		began   = time.Now()
	)
	g.SetLimit(limit)

	for i, fc := range fnCalls {
		if runCtx.Context.Err() != nil {
			break
		}
		g.Go(func() error {
			if runCtx.Context.Err() != nil {
				return nil
			}
			ev := e.call(runCtx, agent, toolRegistry, fc)
			if e.cfg.PreserveOrder {
				ordered[i] = &ev
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			e.emit(runCtx, fc, ev, emit)
			return nil
		})
	}
	_ = g.Wait()

	for i, ev := range ordered {
		if ev != nil {
			e.emit(runCtx, fnCalls[i], *ev, emit)
		}
	}

	runCtx.LogDebug("flow.functions.batch.complete",
		"agent", agent.GetName(),
		"count", n,
		"parallelism", limit,
		"preserve_order", e.cfg.PreserveOrder,
		"duration_ms", time.Since(began).Milliseconds(),
	)
}

// call runs one tool with panic safety and builds its response event.
func (e *parallelFunctionExecutor) call(runCtx *core.RunContext, agent FlowAgent, toolRegistry map[string]tool.Tool, fc core.FunctionCall) core.Event {
	toolCtx := core.NewToolContext(runCtx, fc.ID)
	if e.cfg.LogStartEvents {
		runCtx.LogInfo("flow.function.start", "agent", agent.GetName(), "function", fc.Name, "function_call_id", fc.ID)
	}

	_, span := tracing.StartSpan(runCtx.Context, "tool.call", tracing.String("tool", fc.Name), tracing.String("agent", agent.GetName()))
	defer span.End()

	start := time.Now()

	var (
		result any
		err    error
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				runCtx.LogError("flow.function.panic", "agent", agent.GetName(), "function", fc.Name, "recover", r)
			}
		}()
		result, err = executeTool(toolRegistry, toolCtx, fc.Name, fc.Arguments)
	}()

	runCtx.LogInfo(
		"flow.function.executed",
		"agent", agent.GetName(),
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		tracing.RecordError(span, err)
	} else {
		tracing.SetOK(span)
	}

	respEv := core.NewFunctionResponseEvent(agent.GetName(), fc.ID, fc.Name, result, err)
	respEv.InvocationID = runCtx.RunID
	toolCtx.ApplyActions(&respEv)

	return respEv
}

func (e *parallelFunctionExecutor) emit(runCtx *core.RunContext, fc core.FunctionCall, ev core.Event, emit func(core.Event) error) {
	if err := emit(ev); err != nil {
		runCtx.LogError("flow.function.emit.error", "function", fc.Name, "error", err.Error())
	}
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool looks up and calls a tool with JSON-decoded arguments.
func executeTool(toolRegistry map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := toolRegistry[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	var argMap map[string]any
	if args == "" {
		argMap = map[string]any{}
	} else if err := json.Unmarshal([]byte(args), &argMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	return impl.Call(toolCtx, argMap)
}
