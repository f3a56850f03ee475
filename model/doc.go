// Package model defines the provider-agnostic abstractions for interacting
// with language models inside agentforge.
//
//   - Unify streaming and non-streaming generation behind one interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Carry optional sampling parameters (GenerateConfig)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Provider adapters live in subpackages (openai, anthropic, bedrock) so agents
// and flows stay decoupled from vendor SDKs.
package model
