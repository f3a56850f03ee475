package docstore

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Message statuses written by the dispatcher.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// FileData references an attachment in object storage.
type FileData struct {
	FileURI  string `mapstructure:"file_uri" json:"file_uri"`
	MimeType string `mapstructure:"mime_type" json:"mime_type"`
}

// MessagePart is one part of a stored message: text, an attachment, or both.
type MessagePart struct {
	Text     *string   `mapstructure:"text" json:"text,omitempty"`
	FileData *FileData `mapstructure:"file_data" json:"file_data,omitempty"`
}

// Message is a conversation message document.
type Message struct {
	ID                  string        `mapstructure:"-" json:"-"`
	ParentMessageID     string        `mapstructure:"parentMessageId" json:"parentMessageId,omitempty"`
	Participant         string        `mapstructure:"participant" json:"participant"`
	Parts               []MessagePart `mapstructure:"parts" json:"parts"`
	Status              string        `mapstructure:"status" json:"status,omitempty"`
	InputCharacterCount int           `mapstructure:"inputCharacterCount" json:"inputCharacterCount,omitempty"`
	ErrorDetails        []string      `mapstructure:"errorDetails" json:"errorDetails,omitempty"`
}

// DecodeMessage decodes a message document.
func DecodeMessage(id string, data map[string]any) (Message, error) {
	var msg Message

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &msg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Message{}, err
	}

	if err := dec.Decode(data); err != nil {
		return Message{}, fmt.Errorf("decode message %s: %w", id, err)
	}

	msg.ID = id

	return msg, nil
}

// LoadMessages reads every message of a chat keyed by id. Messages that fail
// to decode are skipped and reported in the returned id list.
func LoadMessages(ctx context.Context, s Store, chatID string) (map[string]Message, []string, error) {
	docs, err := s.List(ctx, MessagesCollection(chatID))
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string]Message, len(docs))
	var invalid []string

	for _, d := range docs {
		msg, err := DecodeMessage(d.ID, d.Data)
		if err != nil {
			invalid = append(invalid, d.ID)
			continue
		}
		out[d.ID] = msg
	}

	return out, invalid, nil
}
