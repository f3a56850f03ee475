package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentforge/core"
)

// ParallelAgent runs its children concurrently. Each child gets a cloned run
// context with its own branch label ("parent.child") and pending state
// delta; events from all branches are funneled into the shared stream.
// Siblings keep running when one fails; the first error is returned.
type ParallelAgent struct {
	BaseAgent
	timeout time.Duration // zero means no limit
}

// NewParallelAgent creates a new parallel execution coordinator.
func NewParallelAgent(name string, timeout time.Duration, children ...core.Agent) *ParallelAgent {
	p := &ParallelAgent{BaseAgent: NewBaseAgent(name), timeout: timeout}
	p.agentType = core.AgentTypeParallel
	_ = p.SetSubAgents(children...)
	return p
}

// branchCtx clones rc for child under "<parent branch>.<name>.<child>".
func (p *ParallelAgent) branchCtx(rc *core.RunContext, child core.Agent) *core.RunContext {
	label := p.Name() + "." + child.Name()
	if rc.Branch != "" {
		label = rc.Branch + "." + label
	}
	return rc.WithBranch(label)
}

// Run implements core.Agent.
func (p *ParallelAgent) Run(runCtx *core.RunContext) error {
	rc := runCtx.WithAgent(p.Info())

	if p.timeout > 0 {
		ctx, cancel := context.WithTimeout(rc.Context, p.timeout)
		defer cancel()
		rc.Context = ctx
	}

	var g errgroup.Group

	for _, child := range p.SubAgents() {
		childCtx := p.branchCtx(rc, child)

		g.Go(func() error {
			if err := child.Run(childCtx); err != nil {
				return fmt.Errorf("parallel execution failed for agent %s: %w", child.Name(), err)
			}
			return nil
		})
	}

	return g.Wait()
}
