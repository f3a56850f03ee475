// Package agent contains the runnable agent kinds of a materialized agent
// tree:
//
//  1. ModelAgent, the model-backed leaf (instruction, tools, output key,
//     sampling parameters) driven by flow.SingleAgentFlow
//  2. SequentialAgent, ParallelAgent and LoopAgent, which coordinate child
//     runs
//  3. BaseAgent, the shared lifecycle and hierarchy plumbing
//
// An agent's Run receives a *core.RunContext. Composite agents pass it on
// (sequential), clone it per branch (parallel) or interpose an intercepting
// child context (loop) to watch for escalation.
package agent
