package agent

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentforge/core"
)

// DefaultMaxIterations bounds a LoopAgent without an explicit limit.
const DefaultMaxIterations = 3

// LoopAgent runs a single child repeatedly. The loop ends when:
//   - maxIters iterations completed
//   - the child emits an event with Actions.Escalate (e.g. via exit_loop)
//   - the optional predicate accepts the iteration's final answer
//   - the context is cancelled
//
// All iterations share the session, so each pass sees the previous output.
type LoopAgent struct {
	BaseAgent
	child       core.Agent
	maxIters    int
	interval    time.Duration
	stopOnError bool
	predicate   func(string) bool
}

// LoopOption defines a configuration function for customizing LoopAgent behavior.
type LoopOption func(*LoopAgent)

// WithMaxIters sets the maximum number of iterations. Values below one fall
// back to DefaultMaxIterations.
func WithMaxIters(n int) LoopOption {
	return func(l *LoopAgent) {
		if n < 1 {
			n = DefaultMaxIterations
		}
		l.maxIters = n
	}
}

// WithInterval sets the delay between iterations.
func WithInterval(d time.Duration) LoopOption {
	return func(l *LoopAgent) { l.interval = d }
}

// WithContinueOnError keeps iterating after a failed iteration.
func WithContinueOnError() LoopOption {
	return func(l *LoopAgent) { l.stopOnError = false }
}

// WithPredicate ends the loop once pred returns true for the text of the
// last final model answer of an iteration.
func WithPredicate(pred func(string) bool) LoopOption {
	return func(l *LoopAgent) { l.predicate = pred }
}

// NewLoopAgent constructs a looping coordinator around a child agent.
func NewLoopAgent(name string, child core.Agent, opts ...LoopOption) *LoopAgent {
	la := &LoopAgent{
		BaseAgent:   NewBaseAgent(name),
		child:       child,
		maxIters:    DefaultMaxIterations,
		stopOnError: true,
	}
	la.agentType = core.AgentTypeLoop

	for _, o := range opts {
		o(la)
	}

	_ = la.SetSubAgents(child)

	return la
}

// MaxIterations returns the configured iteration bound.
func (l *LoopAgent) MaxIterations() int { return l.maxIters }

// Run implements core.Agent.
func (l *LoopAgent) Run(runCtx *core.RunContext) error {
	rc := runCtx.WithAgent(l.Info())

	for i := 0; i < l.maxIters; i++ {
		if err := rc.Err(); err != nil {
			return err
		}

		rc.LogDebug("agent.loop.iteration", "agent", l.Name(), "iteration", i+1, "max", l.maxIters)

		res, err := l.runIteration(rc)
		if res.escalated {
			rc.LogInfo("agent.loop.escalated", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if err != nil {
			if l.stopOnError {
				return fmt.Errorf("loop iteration %d failed for agent %s: %w", i+1, l.child.Name(), err)
			}
			rc.LogWarn("agent.loop.iteration_failed", "agent", l.Name(), "iteration", i+1, "error", err.Error())
		}

		if l.predicate != nil && l.predicate(res.lastAnswer) {
			rc.LogInfo("agent.loop.predicate_satisfied", "agent", l.Name(), "iteration", i+1)
			return nil
		}

		if l.interval > 0 && i < l.maxIters-1 {
			select {
			case <-rc.Done():
				return rc.Err()
			case <-time.After(l.interval):
			}
		}
	}

	rc.LogDebug("agent.loop.completed", "agent", l.Name(), "iterations", l.maxIters)

	return nil
}

type iterationResult struct {
	escalated  bool
	lastAnswer string
}

// runIteration runs the child once behind an intercepting channel so events
// can be inspected for escalation before they reach the parent stream.
func (l *LoopAgent) runIteration(rc *core.RunContext) (iterationResult, error) {
	var res iterationResult

	interceptChan := make(chan core.Event, 16)
	resumeChan := make(chan struct{}, 1)
	childCtx := rc.NewChildContext(interceptChan, resumeChan, "")

	done := make(chan error, 1)

	go func() {
		done <- l.child.Run(childCtx)
	}()

	forward := func(ev core.Event) error {
		if err := rc.Deliver(ev); err != nil {
			return err
		}

		if ev.Actions.Escalate != nil && *ev.Actions.Escalate {
			res.escalated = true
		}
		if ev.IsFinalModelAnswer() {
			res.lastAnswer = ev.Content.Text("")
		}

		if ev.IsPartial() {
			return nil
		}

		// The child waits for at most one resume at a time.
		select {
		case resumeChan <- struct{}{}:
		default:
		}

		return nil
	}

	for {
		select {
		case ev := <-interceptChan:
			if err := forward(ev); err != nil {
				return res, err
			}
		case err := <-done:
			for {
				select {
				case ev := <-interceptChan:
					if ferr := forward(ev); ferr != nil {
						return res, ferr
					}
				default:
					return res, err
				}
			}
		case <-rc.Done():
			return res, rc.Err()
		}
	}
}

// CreateEscalationEvent builds an event that ends the enclosing loop.
func CreateEscalationEvent(invocationID, author string, content *core.Content) core.Event {
	escalate := true
	ev := core.NewEvent(invocationID, author)
	ev.Actions.Escalate = &escalate
	ev.Content = content
	return ev
}
