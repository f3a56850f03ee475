package core

// Agent defines the core interface that all agents in agentforge must implement.
//
// Agents are the processing units of a materialized agent tree. They receive
// inputs through a RunContext, process them asynchronously, and emit events
// to communicate results and state changes back to the Runner.
//
// Implementations must:
//   - Respect context cancellation for graceful shutdown
//   - Emit events through the provided RunContext
//   - Handle the async resume mechanism properly
type Agent interface {
	Name() string
	Description() string
	Start(runCtx *RunContext) error
	Stop(runCtx *RunContext) error
	Run(runCtx *RunContext) error
	SetSubAgents(children ...Agent) error
	SubAgents() []Agent
	Parent() Agent
	FindAgent(name string) Agent
}

// AgentInfo carries identifying details about an agent used in contexts & events.
// Name is the external identifier; Type categorizes the implementation
// (e.g. "Agent", "SequentialAgent").
type AgentInfo struct{ Name, Type string }

// Agent type labels as stored in agent definitions.
const (
	AgentTypeLeaf       = "Agent"
	AgentTypeSequential = "SequentialAgent"
	AgentTypeParallel   = "ParallelAgent"
	AgentTypeLoop       = "LoopAgent"
)
