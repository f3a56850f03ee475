package core

import (
	"errors"
	"fmt"
)

// Sentinel configuration errors. They are fatal for tree construction and are
// usually wrapped in a *ConfigError carrying the offending node.
var (
	ErrUnknownAgentType  = errors.New("unknown agent type")
	ErrMissingModelID    = errors.New("missing modelId")
	ErrUnknownProvider   = errors.New("unknown model provider")
	ErrModelNotFound     = errors.New("model not found")
	ErrToolNotRegistered = errors.New("local tool not registered")
	ErrInvalidTool       = errors.New("invalid tool definition")
	ErrNotFound          = errors.New("not found")
)

// ConfigError reports an invalid or incomplete stored configuration.
type ConfigError struct {
	Node string // agent/tool/model the error refers to
	Op   string // what was being resolved
	Err  error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Node != "" && e.Op != "":
		return fmt.Sprintf("config error in %s (%s): %v", e.Node, e.Op, e.Err)
	case e.Node != "":
		return fmt.Sprintf("config error in %s: %v", e.Node, e.Err)
	default:
		return fmt.Sprintf("config error: %v", e.Err)
	}
}

// Unwrap exposes the wrapped sentinel.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err with node and op context.
func NewConfigError(node, op string, err error) *ConfigError {
	return &ConfigError{Node: node, Op: op, Err: err}
}

// IsConfigError reports whether err (or anything it wraps) is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
