package docstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentforge/internal/util"
)

// MemoryStore is a process-local Store. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]map[string]any{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, path string) (map[string]any, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, notFound(path)
	}

	return normalize(doc)
}

func (s *MemoryStore) Set(_ context.Context, path string, data map[string]any) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}

	doc := map[string]any{}
	applyFields(doc, data, s.now())

	norm, err := normalize(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[path] = norm
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Update(_ context.Context, path string, fields map[string]any) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.docs[path]
	if !ok {
		return notFound(path)
	}

	doc := maps.Clone(existing)
	applyFields(doc, fields, s.now())

	norm, err := normalize(doc)
	if err != nil {
		return err
	}

	s.docs[path] = norm

	return nil
}

func (s *MemoryStore) List(_ context.Context, collection string) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	prefix := strings.Trim(collection, "/") + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Document
	for path, doc := range s.docs {
		id, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(id, "/") {
			continue
		}
		data, err := normalize(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: id, Data: data})
	}

	slices.SortFunc(out, func(a, b Document) int { return strings.Compare(a.ID, b.ID) })

	return out, nil
}

func (s *MemoryStore) AddEvents(_ context.Context, path string, events []map[string]any) error {
	if _, _, err := splitDocPath(path); err != nil {
		return err
	}

	now := s.now()
	batch := make(map[string]map[string]any, len(events))

	for i, ev := range events {
		doc := maps.Clone(ev)
		doc["eventIndex"] = batchIndex(ev, i)
		doc["timestamp"] = ServerTimestamp

		resolved := map[string]any{}
		applyFields(resolved, doc, now)

		norm, err := normalize(resolved)
		if err != nil {
			return err
		}
		batch[eventsCollection(path)+"/"+util.NewULID()] = norm
	}

	s.mu.Lock()
	maps.Copy(s.docs, batch)
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, path string) ([]map[string]any, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return nil, err
	}

	docs, err := s.List(ctx, eventsCollection(path))
	if err != nil {
		return nil, err
	}

	return sortEvents(docs), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func sortEvents(docs []Document) []map[string]any {
	slices.SortStableFunc(docs, func(a, b Document) int {
		return eventIndex(a.Data) - eventIndex(b.Data)
	})

	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Data)
	}

	return out
}

func eventIndex(doc map[string]any) int {
	if f, ok := doc["eventIndex"].(float64); ok {
		return int(f)
	}
	return 0
}
