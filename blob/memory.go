package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps objects in a map keyed by URI. Data is copied on Put and
// Read.
type MemoryStore struct {
	schemes []string

	mu      sync.RWMutex
	objects map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store serving the given schemes (default "mem").
func NewMemoryStore(schemes ...string) *MemoryStore {
	if len(schemes) == 0 {
		schemes = []string{"mem"}
	}
	return &MemoryStore{schemes: schemes, objects: map[string][]byte{}}
}

// Put stores (or overwrites) an object.
func (m *MemoryStore) Put(uri string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[uri] = append([]byte(nil), data...)
}

// Supports reports whether uri uses one of the store's schemes.
func (m *MemoryStore) Supports(uri string) bool { return hasScheme(uri, m.schemes) }

// Read returns a copy of the object.
func (m *MemoryStore) Read(_ context.Context, uri string) ([]byte, error) {
	if !m.Supports(uri) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, uri)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[uri]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uri, ErrNotFound)
	}

	return append([]byte(nil), data...), nil
}
