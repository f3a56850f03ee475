package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentforge/core"
)

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// errorKind names the class of a run failure for the errorDetails entry.
func errorKind(err error) string {
	var (
		pe *panicError
		ce *core.ConfigError
	)

	switch {
	case errors.As(err, &pe):
		return "Panic"
	case errors.As(err, &ce):
		return "ConfigError"
	case errors.Is(err, core.ErrNotFound):
		return "NotFoundError"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	case errors.Is(err, context.Canceled):
		return "CanceledError"
	default:
		return "Error"
	}
}
