package core

import (
	"context"
	"maps"

	"github.com/hupe1980/agentforge/logging"
)

type mockSessionStore struct {
	sessions map[string]*Session
	applied  map[string]map[string]any
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]*Session{}, applied: map[string]map[string]any{}}
}

func (m *mockSessionStore) Get(id string) (*Session, error) {
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	s := NewSession(id)
	m.sessions[id] = s
	return s, nil
}

func (m *mockSessionStore) Create(id string) (*Session, error) { return m.Get(id) }

func (m *mockSessionStore) AppendEvent(id string, ev Event) error {
	if s, ok := m.sessions[id]; ok {
		s.AddEvent(ev)
	}
	return nil
}

func (m *mockSessionStore) ApplyDelta(id string, delta map[string]any) error {
	m.applied[id] = maps.Clone(delta)
	if s, ok := m.sessions[id]; ok {
		s.ApplyStateDelta(delta)
	}
	return nil
}

func newRunContextForTest() (*RunContext, chan Event) {
	store := newMockSessionStore()
	sess, _ := store.Create("sess-x")
	emit := make(chan Event, 10)
	resume := make(chan struct{}, 10)
	rc := NewRunContext(
		context.Background(), "sess-x", "run-x", AgentInfo{Name: "agent_1", Type: AgentTypeLeaf},
		NewTextContent(RoleUser, "Test input"), 0,
		emit, resume, sess, store, logging.NoOpLogger{},
	)
	return rc, emit
}
