package core

import "context"

// Runner executes a root agent for one user turn. Run returns the run id, a
// stream of events closed when the run ends and a channel carrying at most
// one terminal error. Cancel stops a run by id; unknown ids are an error.
type Runner interface {
	Run(ctx context.Context, sessionID string, userContent Content) (string, <-chan Event, <-chan error, error)
	Cancel(runID string) error
}
