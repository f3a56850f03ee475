// Package docstore provides the document store used for stored agent, model
// and conversation configuration.
//
// Documents are JSON-like maps addressed by slash-separated paths with an even
// number of segments (collection/id[/collection/id...]):
//
//	chats/{chatId}/messages/{messageId}
//	chats/{chatId}/messages/{messageId}/events/{autoId}
//	agents/{agentId}
//	models/{modelId}
//
// Two implementations are provided: MemoryStore for tests and single-process
// use, and SQLiteStore backed by modernc.org/sqlite. Both normalize documents
// through JSON, so values read back have JSON types (float64 numbers, RFC 3339
// timestamps).
package docstore
