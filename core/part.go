package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any // Structured key/value payload
	Metadata map[string]any
}

// isPart implements the Part interface for DataPart.
func (DataPart) isPart() {}

// FilePart is a file attachment segment, either inlined or referenced by URI.
type FilePart struct {
	File     FilePartFile
	Metadata map[string]any
}

// isPart implements the Part interface for FilePart.
func (FilePart) isPart() {}

// FunctionCall describes a tool/function invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`        // Optional stable id (can be supplied later)
	Name      string `json:"name"`                // Tool / function name
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (e.g. JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
	Metadata     map[string]any
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
	Metadata         map[string]any
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// FilePartFile describes a file attachment.
type FilePartFile struct {
	Bytes    string // Base64 encoded contents (if inlined)
	MimeType string // MIME type, may be empty
	Name     string // Original filename hint
	URI      string // External retrieval URI (if not inlined)
}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, model, tool, system)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// Conversation roles.
const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
	RoleTool   = "tool"
)

// IsModelRole reports whether role denotes model output. "assistant" is
// accepted for providers that use chat-completion naming.
func IsModelRole(role string) bool { return role == RoleModel || role == "assistant" }

// NewTextContent builds a single text part content.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text joins all text parts with sep.
func (c Content) Text(sep string) string {
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, sep)
}

// PartToMap converts a part into its JSON-safe wire form:
//
//	{"text": ...}
//	{"file_data": {"file_uri", "mime_type"}}
//	{"inline_data": {"data", "mime_type"}}
//	{"function_call": {"id", "name", "args"}}
//	{"function_response": {"id", "name", "response", "error"}}
//	{"data": {...}}
func PartToMap(p Part) map[string]any {
	var m map[string]any
	var md map[string]any

	switch v := p.(type) {
	case TextPart:
		m = map[string]any{"text": v.Text}
		md = v.Metadata
	case FilePart:
		if v.File.Bytes != "" {
			m = map[string]any{"inline_data": map[string]any{"data": v.File.Bytes, "mime_type": v.File.MimeType}}
		} else {
			m = map[string]any{"file_data": map[string]any{"file_uri": v.File.URI, "mime_type": v.File.MimeType}}
		}
		if v.File.Name != "" {
			m["name"] = v.File.Name
		}
		md = v.Metadata
	case FunctionCallPart:
		fc := map[string]any{"name": v.FunctionCall.Name}
		if v.FunctionCall.ID != "" {
			fc["id"] = v.FunctionCall.ID
		}
		if v.FunctionCall.Arguments != "" {
			var args any
			if err := json.Unmarshal([]byte(v.FunctionCall.Arguments), &args); err == nil {
				fc["args"] = args
			} else {
				fc["args"] = v.FunctionCall.Arguments
			}
		}
		m = map[string]any{"function_call": fc}
		md = v.Metadata
	case FunctionResponsePart:
		fr := map[string]any{"name": v.FunctionResponse.Name}
		if v.FunctionResponse.ID != "" {
			fr["id"] = v.FunctionResponse.ID
		}
		if v.FunctionResponse.Response != nil {
			fr["response"] = v.FunctionResponse.Response
		}
		if v.FunctionResponse.Error != "" {
			fr["error"] = v.FunctionResponse.Error
		}
		m = map[string]any{"function_response": fr}
		md = v.Metadata
	case DataPart:
		m = map[string]any{"data": v.Data}
		md = v.Metadata
	default:
		return map[string]any{}
	}

	if len(md) > 0 {
		m["metadata"] = md
	}

	return m
}

// PartFromMap is the inverse of PartToMap. Unrecognized shapes become a DataPart.
func PartFromMap(m map[string]any) Part {
	md, _ := m["metadata"].(map[string]any)

	if t, ok := m["text"].(string); ok {
		return TextPart{Text: t, Metadata: md}
	}

	if fd, ok := m["file_data"].(map[string]any); ok {
		name, _ := m["name"].(string)
		return FilePart{File: FilePartFile{URI: str(fd["file_uri"]), MimeType: str(fd["mime_type"]), Name: name}, Metadata: md}
	}

	if id, ok := m["inline_data"].(map[string]any); ok {
		name, _ := m["name"].(string)
		return FilePart{File: FilePartFile{Bytes: str(id["data"]), MimeType: str(id["mime_type"]), Name: name}, Metadata: md}
	}

	if fc, ok := m["function_call"].(map[string]any); ok {
		call := FunctionCall{ID: str(fc["id"]), Name: str(fc["name"])}
		switch a := fc["args"].(type) {
		case nil:
		case string:
			call.Arguments = a
		default:
			if b, err := json.Marshal(a); err == nil {
				call.Arguments = string(b)
			}
		}
		return FunctionCallPart{FunctionCall: call, Metadata: md}
	}

	if fr, ok := m["function_response"].(map[string]any); ok {
		return FunctionResponsePart{FunctionResponse: FunctionResponse{
			ID:       str(fr["id"]),
			Name:     str(fr["name"]),
			Response: fr["response"],
			Error:    str(fr["error"]),
		}, Metadata: md}
	}

	if d, ok := m["data"].(map[string]any); ok {
		return DataPart{Data: d, Metadata: md}
	}

	return DataPart{Data: m}
}

// PartsToMaps converts parts in order.
func PartsToMaps(parts []Part) []map[string]any {
	out := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		out = append(out, PartToMap(p))
	}
	return out
}

// MarshalJSON encodes parts in their wire form.
func (c Content) MarshalJSON() ([]byte, error) {
	type wire struct {
		Role  string           `json:"role,omitempty"`
		Parts []map[string]any `json:"parts"`
	}
	return json.Marshal(wire{Role: c.Role, Parts: PartsToMaps(c.Parts)})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (c *Content) UnmarshalJSON(b []byte) error {
	var w struct {
		Role  string           `json:"role"`
		Parts []map[string]any `json:"parts"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}
	c.Role = w.Role
	c.Parts = make([]Part, 0, len(w.Parts))
	for _, m := range w.Parts {
		c.Parts = append(c.Parts, PartFromMap(m))
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
