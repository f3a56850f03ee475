package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/logging"
)

// Collector drains an event stream, persists the events in one batch and
// extracts the final answer.
type Collector struct {
	docs   docstore.Store
	logger logging.Logger
}

// NewCollector returns a Collector writing to docs.
func NewCollector(docs docstore.Store, logger logging.Logger) *Collector {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Collector{docs: docs, logger: logger}
}

// CollectEvents drains runner events into path's events collection.
func (c *Collector) CollectEvents(ctx context.Context, path string, events <-chan core.Event, errs <-chan error) *Result {
	return collect(ctx, c, path, events, errs, func(ev core.Event) (map[string]any, error) { return ev.ToMap() })
}

// CollectMaps drains already decoded events into path's events collection.
func (c *Collector) CollectMaps(ctx context.Context, path string, events <-chan map[string]any, errs <-chan error) *Result {
	return collect(ctx, c, path, events, errs, jsonSafe)
}

func collect[T any](ctx context.Context, c *Collector, path string, events <-chan T, errs <-chan error, toMap func(T) (map[string]any, error)) *Result {
	res := &Result{}

	var (
		gathered []map[string]any
		seen     int
	)

	// Events keep their stream position as eventIndex, so a dropped event
	// leaves a gap instead of renumbering its successors.
	add := func(ev T) {
		idx := seen
		seen++

		m, err := toMap(ev)
		if err != nil {
			res.Diagnostics.Warnf(component, "", "dropping event %d: %v", idx, err)
			return
		}
		m["eventIndex"] = idx
		gathered = append(gathered, m)
	}

	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			add(ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				c.logger.Error("dispatch.run.failed", "path", path, "error", err)
				res.ErrorDetails = append(res.ErrorDetails, fmt.Sprintf("Agent run failed: %v", err))
			}
		case <-ctx.Done():
			res.ErrorDetails = append(res.ErrorDetails, fmt.Sprintf("Agent run failed: %v", ctx.Err()))
			events, errs = nil, nil
		}
	}

	if len(gathered) > 0 {
		if err := c.docs.AddEvents(context.WithoutCancel(ctx), path, gathered); err != nil {
			res.Diagnostics.Errorf(component, "", "persisting %d events failed: %v", len(gathered), err)
		} else {
			c.logger.Info("dispatch.events.persisted", "path", path, "events", len(gathered))
		}
	}

	res.FinalParts = FinalParts(gathered)

	return res
}

// FinalParts returns the parts of the newest complete model answer: model
// role, not partial and without a function_call part. Nil when none exists.
func FinalParts(events []map[string]any) []map[string]any {
	for _, ev := range slices.Backward(events) {
		content, _ := ev["content"].(map[string]any)
		if content == nil {
			continue
		}

		role, _ := content["role"].(string)
		if !core.IsModelRole(role) {
			continue
		}

		if partial, _ := ev["partial"].(bool); partial {
			continue
		}

		parts := toMaps(content["parts"])
		if slices.ContainsFunc(parts, func(p map[string]any) bool { _, ok := p["function_call"]; return ok }) {
			continue
		}

		if len(parts) == 0 {
			return nil
		}

		return parts
	}

	return nil
}

func toMaps(v any) []map[string]any {
	switch parts := v.(type) {
	case []map[string]any:
		return parts
	case []any:
		out := make([]map[string]any, 0, len(parts))
		for _, p := range parts {
			if m, ok := p.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// jsonSafe round-trips m through JSON so only storable values remain.
func jsonSafe(m map[string]any) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
