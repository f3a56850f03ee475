// Package logging provides a minimal logging interface and adapters for agentforge.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that builders, agents and the dispatcher use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "json"})
//	d := dispatch.New(store, func(o *dispatch.Options) { o.Logger = logger })
package logging
