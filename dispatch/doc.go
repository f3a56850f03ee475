// Package dispatch executes one "run a conversation turn" request.
//
// A Dispatcher receives an Invocation for an assistant message, marks it
// running, reconstructs the conversation history, selects a backend from
// the participant configuration and writes the terminal message state:
//
//   - a2a: a peer agent reached over JSON-RPC message/send
//   - google_vertex (alias hosted): a remotely hosted agent streaming events
//   - model id: a synthesized single leaf run in-process
//   - any other agent: the stored definition built and run in-process
//
// Every event of a run is persisted in one batch under the message's events
// collection. Failures never escape Handle; they end up in the message's
// errorDetails with status "error".
package dispatch
