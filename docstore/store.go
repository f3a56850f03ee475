package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentforge/core"
)

// ErrInvalidPath is returned for malformed document or collection paths.
var ErrInvalidPath = errors.New("invalid document path")

// Document is a stored document with its id (last path segment).
type Document struct {
	ID   string
	Data map[string]any
}

// Store is the document store interface consumed by the dispatcher, the
// history reconstructor and the agent tree builder.
type Store interface {
	// Get returns the document at path. Missing documents yield an error
	// wrapping core.ErrNotFound.
	Get(ctx context.Context, path string) (map[string]any, error)
	// Set creates or replaces the document at path.
	Set(ctx context.Context, path string, data map[string]any) error
	// Update merges top-level fields into an existing document. Field values
	// may be ServerTimestamp or ArrayUnion sentinels.
	Update(ctx context.Context, path string, fields map[string]any) error
	// List returns the documents of a collection ordered by id.
	List(ctx context.Context, collection string) ([]Document, error)
	// AddEvents writes events as one atomic batch under {path}/events with
	// auto ids and a server timestamp. An event keeps an eventIndex it already
	// carries; otherwise its zero based batch position is used.
	AddEvents(ctx context.Context, path string, events []map[string]any) error
	// ListEvents returns the events below path ordered by eventIndex.
	ListEvents(ctx context.Context, path string) ([]map[string]any, error)
	// Close releases resources held by the store.
	Close() error
}

// MessagePath returns the path of a conversation message document.
func MessagePath(chatID, messageID string) string {
	return "chats/" + chatID + "/messages/" + messageID
}

// MessagesCollection returns the collection holding a chat's messages.
func MessagesCollection(chatID string) string { return "chats/" + chatID + "/messages" }

func AgentPath(agentID string) string { return "agents/" + agentID }

func ModelPath(modelID string) string { return "models/" + modelID }

func eventsCollection(path string) string { return path + "/events" }

// splitDocPath validates a document path and returns its parent collection
// and id.
func splitDocPath(path string) (string, string, error) {
	segs, err := segments(path)
	if err != nil {
		return "", "", err
	}
	if len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%w: %q is a collection", ErrInvalidPath, path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

func checkCollection(path string) error {
	segs, err := segments(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return fmt.Errorf("%w: %q is a document", ErrInvalidPath, path)
	}
	return nil
}

func segments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// batchIndex is the eventIndex stored for the i-th event of a batch.
func batchIndex(ev map[string]any, i int) int {
	switch v := ev["eventIndex"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return i
	}
}

func notFound(path string) error {
	return fmt.Errorf("document %s: %w", path, core.ErrNotFound)
}

// normalize round-trips data through JSON so both store implementations
// return identical value types.
func normalize(data map[string]any) (map[string]any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
