package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrModelCallLimit is returned once a run has used up its model calls.
var ErrModelCallLimit = errors.New("model call limit exceeded")

// ModelLimiter counts model calls of one run against an upper bound. A bound
// of zero or less means unlimited. Clones of a RunContext share the limiter,
// so sibling branches draw from the same budget.
type ModelLimiter struct {
	max   int64
	calls atomic.Int64
}

func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: int64(max)}
}

// Increment records one call and fails when it exceeds the bound.
func (ml *ModelLimiter) Increment() error {
	n := ml.calls.Add(1)
	if ml.max > 0 && n > ml.max {
		return fmt.Errorf("%w: %d calls allowed", ErrModelCallLimit, ml.max)
	}
	return nil
}

// Count returns the calls recorded so far, including rejected ones.
func (ml *ModelLimiter) Count() int { return int(ml.calls.Load()) }

// Remaining returns the calls left, or -1 when unlimited or exhausted past
// the bound.
func (ml *ModelLimiter) Remaining() int {
	if ml.max <= 0 {
		return -1
	}
	left := ml.max - ml.calls.Load()
	if left < 0 {
		return -1
	}
	return int(left)
}
