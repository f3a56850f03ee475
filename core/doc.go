// Package core provides the foundational domain types, interfaces and execution
// contexts used by agentforge:
//
//   - Agents (units of autonomous or orchestrated work)
//   - Sessions (stateful conversational containers with event history)
//   - Events and role-based Content built from Parts
//   - RunContext / ToolContext (scoped execution and tool sandboxing)
//   - Diagnostics and ConfigError for degraded or invalid configuration
//
// Persistence, orchestration and concrete agents live in other packages;
// core only exposes small interfaces so backends can be swapped.
package core
