// Package runner implements the in-process interpreter backend.
//
// A Runner executes a materialized root agent against one session:
//   - the user content is appended as the first event
//   - agent events are persisted (state delta first, then the event) and
//     streamed to the caller in emission order
//   - the agent is resumed once its event is persisted
//   - a failure ends the run with one terminal error
package runner
