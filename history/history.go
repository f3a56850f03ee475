// Package history rebuilds the conversation leading up to a message from the
// parent-pointer message graph and turns it into model input content.
package history

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentforge/blob"
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
)

const component = "history"

// Options configures a Reconstructor.
type Options struct {
	// MaxConcurrentFetches bounds parallel attachment downloads.
	MaxConcurrentFetches int
	Logger               logging.Logger
}

// Reconstructor loads message chains and builds model input from them.
type Reconstructor struct {
	docs     docstore.Store
	blobs    blob.Store
	maxFetch int
	logger   logging.Logger
}

// New returns a Reconstructor. blobs may be nil, in which case attachments are
// never fetched.
func New(docs docstore.Store, blobs blob.Store, optFns ...func(o *Options)) *Reconstructor {
	opts := Options{
		MaxConcurrentFetches: 4,
		Logger:               logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentFetches < 1 {
		opts.MaxConcurrentFetches = 1
	}

	return &Reconstructor{
		docs:     docs,
		blobs:    blobs,
		maxFetch: opts.MaxConcurrentFetches,
		logger:   opts.Logger,
	}
}

// Reconstruct returns the chain of messages ending at leafMessageID, oldest
// first. The walk stops at a message without parent, at an unknown id, or when
// an id repeats.
func (r *Reconstructor) Reconstruct(ctx context.Context, chatID, leafMessageID string) ([]docstore.Message, error) {
	if leafMessageID == "" {
		return nil, nil
	}

	all, invalid, err := docstore.LoadMessages(ctx, r.docs, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages of chat %s: %w", chatID, err)
	}

	for _, id := range invalid {
		r.logger.Warn("history.message.invalid", "chat_id", chatID, "message_id", id)
	}

	var chain []docstore.Message

	seen := map[string]bool{}
	for id := leafMessageID; id != ""; {
		msg, ok := all[id]
		if !ok || seen[id] {
			break
		}
		seen[id] = true
		chain = append(chain, msg)
		id = msg.ParentMessageID
	}

	// walked leaf to root
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	r.logger.Info("history.reconstructed", "chat_id", chatID, "messages", len(chain))

	return chain, nil
}

// Role returns the model role for assistant participants, else the user role.
func Role(participant string) string {
	if strings.HasPrefix(participant, "assistant:") {
		return core.RoleModel
	}
	return core.RoleUser
}

type attachment struct {
	slot     int
	role     string
	uri      string
	mimeType string
}

// BuildContent converts a message chain into one user Content and returns the
// number of history characters it contains. Attachments are fetched
// concurrently; parts keep message order. Failed fetches become error text
// parts and diagnostics.
func (r *Reconstructor) BuildContent(ctx context.Context, msgs []docstore.Message) (core.Content, int, core.Diagnostics) {
	ctx, span := tracing.StartSpan(ctx, "history.build_content", tracing.Int("messages", len(msgs)))
	defer span.End()

	var (
		parts  []core.Part
		total  int
		diags  core.Diagnostics
		toLoad []attachment
	)

	for _, msg := range msgs {
		role := Role(msg.Participant)

		var texts []string
		for _, p := range msg.Parts {
			if p.Text != nil {
				texts = append(texts, *p.Text)
			}
		}

		if len(texts) > 0 {
			if full := strings.TrimSpace(strings.Join(texts, "\n")); full != "" {
				parts = append(parts, core.TextPart{Text: role + ": " + full})
				total += utf8.RuneCountInString(full)
			}
		}

		for _, p := range msg.Parts {
			fd := p.FileData
			if fd == nil || fd.FileURI == "" || fd.MimeType == "" || r.blobs == nil || !r.blobs.Supports(fd.FileURI) {
				continue
			}

			if !strings.HasPrefix(fd.MimeType, "image/") && !strings.HasPrefix(fd.MimeType, "text/") {
				parts = append(parts, core.FilePart{File: core.FilePartFile{URI: fd.FileURI, MimeType: fd.MimeType}})
				continue
			}

			toLoad = append(toLoad, attachment{slot: len(parts), role: role, uri: fd.FileURI, mimeType: fd.MimeType})
			parts = append(parts, nil)
		}
	}

	failed := r.fetch(ctx, toLoad, parts)
	for _, a := range failed {
		diags.Errorf(component, "", "could not load content from %s", a.uri)
	}

	if len(parts) == 0 {
		parts = append(parts, core.TextPart{Text: ""})
	}

	tracing.SetOK(span)

	return core.Content{Role: core.RoleUser, Parts: parts}, total, diags
}

// fetch fills parts[a.slot] for every attachment and returns the failures in
// input order.
func (r *Reconstructor) fetch(ctx context.Context, atts []attachment, parts []core.Part) []attachment {
	if len(atts) == 0 {
		return nil
	}

	failed := make([]bool, len(atts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxFetch)

	for i, a := range atts {
		g.Go(func() error {
			part, err := r.load(gctx, a)
			if err != nil {
				r.logger.Error("history.attachment.failed", "uri", a.uri, "error", err.Error())
				part = core.TextPart{Text: fmt.Sprintf("[%s Error: Could not load content from %s]", a.role, a.uri)}
				failed[i] = true
			}
			parts[a.slot] = part
			return nil
		})
	}

	_ = g.Wait()

	var out []attachment
	for i, f := range failed {
		if f {
			out = append(out, atts[i])
		}
	}

	return out
}

func (r *Reconstructor) load(ctx context.Context, a attachment) (core.Part, error) {
	data, err := r.blobs.Read(ctx, a.uri)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(a.mimeType, "image/") {
		return core.FilePart{File: core.FilePartFile{
			Bytes:    base64.StdEncoding.EncodeToString(data),
			MimeType: a.mimeType,
			URI:      a.uri,
		}}, nil
	}

	return core.TextPart{Text: fmt.Sprintf("%s uploaded file '%s':\n%s", a.role, blob.ObjectName(a.uri), string(data))}, nil
}
