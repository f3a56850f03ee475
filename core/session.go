package core

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Session is the scratch conversation of one in-process run: the events
// produced so far and the key/value state agents share through output keys
// and tool state deltas. It is safe for concurrent use.
type Session struct {
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`

	mu sync.RWMutex
}

func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value stored under key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

func (s *Session) SetState(key string, value any) {
	s.ApplyStateDelta(map[string]any{key: value})
}

// ApplyStateDelta merges delta into State.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.State, delta)
	s.Updated = time.Now()
}

func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a copy of the event history.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.Events)
}

// GetConversationHistory returns the complete user, model and tool turns,
// the part of the history models get to see.
func (s *Session) GetConversationHistory() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Event, 0, len(s.Events))
	for _, ev := range s.Events {
		if ev.Content == nil || ev.IsPartial() {
			continue
		}
		if r := ev.Content.Role; r == RoleUser || r == RoleTool || IsModelRole(r) {
			res = append(res, ev)
		}
	}
	return res
}

// Clone returns a copy that can be mutated independently. State values
// themselves are shared.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := maps.Clone(s.State)
	if state == nil {
		state = map[string]any{}
	}

	return &Session{
		ID:      s.ID,
		State:   state,
		Events:  slices.Clone(s.Events),
		Created: s.Created,
		Updated: s.Updated,
	}
}

// SessionStore holds the sessions of in-process runs.
type SessionStore interface {
	Create(id string) (*Session, error)
	Get(id string) (*Session, error)
	AppendEvent(sessionID string, event Event) error
	ApplyDelta(sessionID string, delta map[string]any) error
}
