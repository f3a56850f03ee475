package agent

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/agentforge/core"
)

var (
	errAlreadyRunning = errors.New("agent is already running")
	errNotRunning     = errors.New("agent is not running")
)

// BaseAgent carries identity, the running flag and the parent/child links of
// a tree node. Concrete agents embed it and add Run.
type BaseAgent struct {
	name        string
	description string
	agentType   string
	running     atomic.Bool

	mu        sync.RWMutex
	parent    core.Agent
	subAgents []core.Agent
}

func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: "Agent " + name,
		agentType:   core.AgentTypeLeaf,
	}
}

func (b *BaseAgent) Name() string { return b.name }

func (b *BaseAgent) Description() string { return b.description }

func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// AgentType is the stored agentType label (Agent, SequentialAgent, ...).
func (b *BaseAgent) AgentType() string { return b.agentType }

func (b *BaseAgent) Info() core.AgentInfo { return core.AgentInfo{Name: b.name, Type: b.agentType} }

// Start marks the agent running. A node runs at most once at a time.
func (b *BaseAgent) Start(_ *core.RunContext) error {
	if !b.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	return nil
}

func (b *BaseAgent) Stop(_ *core.RunContext) error {
	if !b.running.CompareAndSwap(true, false) {
		return errNotRunning
	}
	return nil
}

// SetSubAgents replaces the children and re-points their parent links.
func (b *BaseAgent) SetSubAgents(children ...core.Agent) error {
	if slices.Contains(children, nil) {
		return errors.New("nil sub-agent")
	}

	b.mu.Lock()
	old := b.subAgents
	b.subAgents = slices.Clone(children)
	b.mu.Unlock()

	for _, c := range old {
		linkParent(c, nil)
	}
	for _, c := range children {
		linkParent(c, &agentWrapper{b})
	}
	return nil
}

func linkParent(child, parent core.Agent) {
	if p, ok := child.(interface{ setParent(core.Agent) }); ok {
		p.setParent(parent)
	}
}

func (b *BaseAgent) setParent(p core.Agent) {
	b.mu.Lock()
	b.parent = p
	b.mu.Unlock()
}

// Parent is nil for the root.
func (b *BaseAgent) Parent() core.Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.parent
}

func (b *BaseAgent) SubAgents() []core.Agent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.subAgents)
}

// FindAgent searches the subtree depth first, this node included.
func (b *BaseAgent) FindAgent(name string) core.Agent {
	if b.name == name {
		return &agentWrapper{b}
	}
	for _, c := range b.SubAgents() {
		if c.Name() == name {
			return c
		}
		if found := c.FindAgent(name); found != nil {
			return found
		}
	}
	return nil
}

// agentWrapper lets a bare BaseAgent stand in for its embedding agent in
// parent links.
type agentWrapper struct{ *BaseAgent }

func (w *agentWrapper) Run(_ *core.RunContext) error {
	return errors.New("BaseAgent has no Run; embed it in a concrete agent")
}

// InfoOf returns the name and agentType label of a, defaulting to the leaf label.
func InfoOf(a core.Agent) core.AgentInfo {
	if typed, ok := a.(interface{ AgentType() string }); ok {
		return core.AgentInfo{Name: a.Name(), Type: typed.AgentType()}
	}
	return core.AgentInfo{Name: a.Name(), Type: core.AgentTypeLeaf}
}
