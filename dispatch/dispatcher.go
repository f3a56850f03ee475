package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentforge/a2a"
	"github.com/hupe1980/agentforge/blob"
	"github.com/hupe1980/agentforge/builder"
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/docstore"
	"github.com/hupe1980/agentforge/history"
	"github.com/hupe1980/agentforge/hosted"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
)

const component = "dispatch"

// Participant platforms.
const (
	PlatformA2A          = "a2a"
	PlatformGoogleVertex = "google_vertex"
	PlatformHosted       = "hosted"
)

// Invocation is one task-queue request.
type Invocation struct {
	ChatID             string `json:"chatId"`
	AssistantMessageID string `json:"assistantMessageId"`
	AgentID            string `json:"agentId,omitempty"`
	ModelID            string `json:"modelId,omitempty"`
	UserID             string `json:"adkUserId,omitempty"`
}

// Validate checks the required identifiers.
func (inv Invocation) Validate() error {
	if inv.ChatID == "" || inv.AssistantMessageID == "" {
		return errors.New("chatId and assistantMessageId are required")
	}
	return nil
}

// Result is the outcome of a run.
type Result struct {
	FinalParts   []map[string]any
	ErrorDetails []string
	Diagnostics  core.Diagnostics
}

// Status is the terminal message status for r.
func (r *Result) Status() string {
	if len(r.ErrorDetails) > 0 {
		return docstore.StatusError
	}
	return docstore.StatusCompleted
}

// PeerClient sends A2A messages. text becomes the single text part of a user
// message.
type PeerClient interface {
	Send(ctx context.Context, endpoint, text string) (*a2a.Response, error)
}

// HostedClient streams queries to hosted agents.
type HostedClient interface {
	StreamQuery(ctx context.Context, resource, message, userID string) (<-chan map[string]any, <-chan error)
}

// Options configures a Dispatcher.
type Options struct {
	Builder *builder.Builder
	History *history.Reconstructor
	Peer    PeerClient
	Hosted  HostedClient
	// MaxModelCalls bounds model calls of one in-process run.
	MaxModelCalls int
	Logger        logging.Logger
}

// Dispatcher executes invocations.
type Dispatcher struct {
	docs docstore.Store
	opts Options
}

// New returns a Dispatcher. Collaborators not set in the options are created
// with their defaults over docs and blobs.
func New(docs docstore.Store, blobs blob.Store, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		MaxModelCalls: 100,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Builder == nil {
		opts.Builder = builder.New(docs, func(o *builder.Options) { o.Logger = opts.Logger })
	}

	if opts.History == nil {
		opts.History = history.New(docs, blobs, func(o *history.Options) { o.Logger = opts.Logger })
	}

	if opts.Peer == nil {
		opts.Peer = a2a.NewClient(func(o *a2a.Options) { o.Logger = opts.Logger })
	}

	if opts.Hosted == nil {
		opts.Hosted = hosted.NewClient(func(o *hosted.Options) { o.Logger = opts.Logger })
	}

	return &Dispatcher{docs: docs, opts: opts}
}

// Handle runs inv and writes the terminal message state. Run failures,
// including panics, are recorded on the message; the returned error is only
// set when the message itself could not be updated.
func (d *Dispatcher) Handle(ctx context.Context, inv Invocation) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.handle",
		tracing.String("chat_id", inv.ChatID),
		tracing.String("message_id", inv.AssistantMessageID),
	)
	defer span.End()

	path := docstore.MessagePath(inv.ChatID, inv.AssistantMessageID)
	logger := d.opts.Logger

	logger.Info("dispatch.run.start",
		"chat_id", inv.ChatID,
		"message_id", inv.AssistantMessageID,
		"agent_id", inv.AgentID,
		"model_id", inv.ModelID,
	)

	res, err := d.run(ctx, path, inv)

	// The terminal state is written even when the caller cancelled the run.
	wctx := context.WithoutCancel(ctx)

	if err != nil {
		msg := fmt.Sprintf("Task handler exception for message %s: %s - %v", inv.AssistantMessageID, errorKind(err), err)
		logger.Error("dispatch.run.exception", "message_id", inv.AssistantMessageID, "error", msg)
		tracing.RecordError(span, err)

		if uerr := d.docs.Update(wctx, path, map[string]any{
			"status":             docstore.StatusError,
			"errorDetails":       docstore.ArrayUnion(msg),
			"completedTimestamp": docstore.ServerTimestamp,
		}); uerr != nil {
			logger.Error("dispatch.status.failed", "message_id", inv.AssistantMessageID, "error", uerr)
			return &Result{ErrorDetails: []string{msg}}, fmt.Errorf("record failure of message %s: %w", inv.AssistantMessageID, uerr)
		}

		return &Result{ErrorDetails: []string{msg}}, nil
	}

	res.Diagnostics.Log(logger)

	parts := res.FinalParts
	if parts == nil {
		parts = []map[string]any{}
	}
	details := append([]string{}, res.ErrorDetails...)

	if err := d.docs.Update(wctx, path, map[string]any{
		"parts":              parts,
		"status":             res.Status(),
		"errorDetails":       details,
		"completedTimestamp": docstore.ServerTimestamp,
	}); err != nil {
		logger.Error("dispatch.status.failed", "message_id", inv.AssistantMessageID, "error", err)
		tracing.RecordError(span, err)
		return res, fmt.Errorf("write result of message %s: %w", inv.AssistantMessageID, err)
	}

	logger.Info("dispatch.run.complete",
		"message_id", inv.AssistantMessageID,
		"status", res.Status(),
		"final_parts", len(res.FinalParts),
		"errors", len(res.ErrorDetails),
		"diagnostics", len(res.Diagnostics),
	)
	tracing.SetOK(span)

	return res, nil
}

// run marks the message running and executes it, converting panics into
// errors.
func (d *Dispatcher) run(ctx context.Context, path string, inv Invocation) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &panicError{value: r}
		}
	}()

	if err := d.docs.Update(ctx, path, map[string]any{"status": docstore.StatusRunning}); err != nil {
		return nil, fmt.Errorf("mark message running: %w", err)
	}

	return d.execute(ctx, path, inv)
}

func (d *Dispatcher) execute(ctx context.Context, path string, inv Invocation) (*Result, error) {
	data, err := d.docs.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("assistant message %s not found: %w", inv.AssistantMessageID, err)
	}

	msg, err := docstore.DecodeMessage(inv.AssistantMessageID, data)
	if err != nil {
		return nil, err
	}

	chain, err := d.opts.History.Reconstruct(ctx, inv.ChatID, msg.ParentMessageID)
	if err != nil {
		return nil, err
	}

	content, chars, diags := d.opts.History.BuildContent(ctx, chain)

	if err := d.docs.Update(ctx, path, map[string]any{"inputCharacterCount": chars}); err != nil {
		return nil, fmt.Errorf("update inputCharacterCount: %w", err)
	}

	var participantPath string
	switch {
	case inv.AgentID != "":
		participantPath = docstore.AgentPath(inv.AgentID)
	case inv.ModelID != "":
		participantPath = docstore.ModelPath(inv.ModelID)
	default:
		return noPath(inv, diags), nil
	}

	participant, err := d.docs.Get(ctx, participantPath)
	if err != nil {
		return nil, fmt.Errorf("participant config not found for ID %s: %w", firstNonEmpty(inv.AgentID, inv.ModelID), err)
	}

	platform, _ := participant["platform"].(string)

	var res *Result

	switch {
	case inv.AgentID != "" && platform == PlatformA2A:
		res, err = d.runPeer(ctx, path, participant, content)
	case inv.AgentID != "" && (platform == PlatformGoogleVertex || platform == PlatformHosted):
		res, err = d.runHosted(ctx, path, inv, participant, content)
	case inv.ModelID != "":
		doc := map[string]any{
			"name":      "model_run_" + prefix(inv.ModelID, 6),
			"agentType": core.AgentTypeLeaf,
			"modelId":   inv.ModelID,
			"tools":     []any{},
		}
		res, err = d.runLocal(ctx, path, inv, doc, content)
	default:
		res, err = d.runLocal(ctx, path, inv, participant, content)
	}

	if err != nil {
		return nil, err
	}

	res.Diagnostics = append(diags, res.Diagnostics...)

	return res, nil
}

func noPath(inv Invocation, diags core.Diagnostics) *Result {
	return &Result{
		ErrorDetails: []string{fmt.Sprintf("No valid execution path for agentId: %s, modelId: %s", inv.AgentID, inv.ModelID)},
		Diagnostics:  diags,
	}
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
