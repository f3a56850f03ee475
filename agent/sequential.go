package agent

import (
	"fmt"

	"github.com/hupe1980/agentforge/core"
)

// SequentialAgent runs its children one after another against the same
// session. Later children see the events and state written by earlier ones.
// The first failing child stops the sequence.
type SequentialAgent struct {
	BaseAgent
}

// NewSequentialAgent creates a new sequential execution coordinator.
func NewSequentialAgent(name string, children ...core.Agent) *SequentialAgent {
	s := &SequentialAgent{BaseAgent: NewBaseAgent(name)}
	s.agentType = core.AgentTypeSequential
	_ = s.SetSubAgents(children...)
	return s
}

// Run implements core.Agent.
func (s *SequentialAgent) Run(runCtx *core.RunContext) error {
	rc := runCtx.WithAgent(s.Info())

	for i, child := range s.SubAgents() {
		if err := rc.Err(); err != nil {
			return err
		}

		rc.LogDebug("agent.sequential.step", "agent", s.Name(), "step", i, "child", child.Name())

		if err := child.Run(rc); err != nil {
			return fmt.Errorf("sequential execution failed at agent %s: %w", child.Name(), err)
		}
	}

	return nil
}
