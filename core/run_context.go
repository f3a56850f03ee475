package core

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/hupe1980/agentforge/logging"
)

// ErrNoSessionStore is returned by RunContext helpers that need persistence
// when the context was created without a SessionStore.
var ErrNoSessionStore = errors.New("session store not configured")

// RunContext carries execution state and helpers for a single agent run.
// It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (SessionID, RunID, Agent info)
//   - The user Content that started the run
//   - Emission / resumption coordination channels
//   - A working Session snapshot and the pending StateDelta
//   - Branch label for hierarchical flows
//
// State mutations performed via SetState accumulate in StateDelta until
// CommitStateDelta or EmitEvent applies them. Cloning produces an isolated
// delta buffer while keeping references to the shared store and limiter.
type RunContext struct {
	Context          context.Context
	SessionID, RunID string
	Agent            AgentInfo
	UserContent      Content
	MaxModelCalls    int
	Emit             chan<- Event
	Resume           <-chan struct{}
	SessionStore     SessionStore
	Limiter          *ModelLimiter
	Session          *Session
	StateDelta       map[string]any
	Branch           string

	// deliverMu serializes emit+resume handshakes of contexts sharing the
	// same channels (clones used by parallel branches).
	deliverMu *sync.Mutex

	*runLogger
}

// runLogger is embedded by RunContext and ToolContext. Its logger is never nil.
type runLogger struct{ l logging.Logger }

func withLogger(l logging.Logger) *runLogger {
	if l == nil {
		return &runLogger{l: logging.NoOpLogger{}}
	}
	return &runLogger{l: l}
}

func (r *runLogger) Logger() logging.Logger { return r.l }

func (r *runLogger) LogDebug(event string, kv ...any) { r.l.Debug(event, kv...) }

func (r *runLogger) LogInfo(event string, kv ...any) { r.l.Info(event, kv...) }

func (r *runLogger) LogWarn(event string, kv ...any) { r.l.Warn(event, kv...) }

func (r *runLogger) LogError(event string, kv ...any) { r.l.Error(event, kv...) }

// NewRunContext constructs a RunContext with an empty state delta.
func NewRunContext(
	ctx context.Context,
	sessionID, runID string,
	agent AgentInfo,
	userContent Content,
	maxModelCalls int,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionStore SessionStore,
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		SessionID:     sessionID,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		MaxModelCalls: maxModelCalls,
		Emit:          emit,
		Resume:        resume,
		Session:       sess,
		SessionStore:  sessionStore,
		Limiter:       NewModelLimiter(maxModelCalls),
		StateDelta:    map[string]any{},
		deliverMu:     &sync.Mutex{},
		runLogger:     withLogger(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns a staged (delta) value if present, else the persisted session value.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		return v, true
	}

	if rc.Session != nil {
		return rc.Session.GetState(k)
	}

	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (rc *RunContext) RefreshSession() error {
	if rc.SessionStore == nil {
		return ErrNoSessionStore
	}

	s, err := rc.SessionStore.Get(rc.SessionID)
	if err != nil {
		return err
	}

	rc.Session = s

	return nil
}

// CommitStateDelta persists the accumulated StateDelta then clears the buffer.
func (rc *RunContext) CommitStateDelta() error {
	if len(rc.StateDelta) == 0 {
		return nil
	}

	if rc.SessionStore == nil {
		return ErrNoSessionStore
	}

	if err := rc.SessionStore.ApplyDelta(rc.SessionID, rc.StateDelta); err != nil {
		return err
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// GetSessionHistory returns all historical events for the session.
func (rc *RunContext) GetSessionHistory() []Event {
	if rc.Session == nil {
		return []Event{}
	}

	return rc.Session.GetEvents()
}

// GetAgentName returns the logical agent name for this run.
func (rc *RunContext) GetAgentName() string { return rc.Agent.Name }

// GetAgentType returns a categorization label for the agent.
func (rc *RunContext) GetAgentType() string { return rc.Agent.Type }

// Clone returns a shallow copy with a deep-copied state delta.
func (rc *RunContext) Clone() *RunContext {
	c := *rc
	c.StateDelta = maps.Clone(rc.StateDelta)
	if c.StateDelta == nil {
		c.StateDelta = map[string]any{}
	}
	return &c
}

// WithBranch clones the context and sets the Branch label.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	c.Branch = b
	return c
}

// WithAgent clones the context and rebinds it to another agent.
func (rc *RunContext) WithAgent(info AgentInfo) *RunContext {
	c := rc.Clone()
	c.Agent = info
	return c
}

// NewChildContext derives a context for a nested execution path with fresh
// emission channels and an empty delta buffer. An empty branch keeps the
// parent's label.
func (rc *RunContext) NewChildContext(emit chan<- Event, resume <-chan struct{}, branch string) *RunContext {
	c := *rc
	c.Emit = emit
	c.Resume = resume
	c.StateDelta = map[string]any{}
	c.deliverMu = &sync.Mutex{}
	if branch != "" {
		c.Branch = branch
	}
	return &c
}

// EmitEvent merges the pending StateDelta into the event and emits it.
func (rc *RunContext) EmitEvent(ev Event) error {
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = make(map[string]any, len(rc.StateDelta))
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}

	if ev.Branch == nil && rc.Branch != "" {
		b := rc.Branch
		ev.Branch = &b
	}

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	rc.StateDelta = map[string]any{}

	return nil
}

// Deliver emits ev and, for non-partial events, blocks until the consumer
// signals Resume. Contexts sharing channels take turns so every resume
// signal reaches the emitter it belongs to.
func (rc *RunContext) Deliver(ev Event) error {
	if rc.deliverMu == nil {
		rc.deliverMu = &sync.Mutex{}
	}

	rc.deliverMu.Lock()
	defer rc.deliverMu.Unlock()

	if err := rc.EmitEvent(ev); err != nil {
		return err
	}

	if ev.IsPartial() {
		return nil
	}

	return rc.WaitForResume()
}

// WaitForResume blocks until Resume signals or context cancellation.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}

	select {
	case <-rc.Resume:
		return nil
	case <-rc.Context.Done():
		return rc.Context.Err()
	}
}
