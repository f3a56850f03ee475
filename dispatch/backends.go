package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentforge/a2a"
	"github.com/hupe1980/agentforge/builder"
	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/internal/util"
	"github.com/hupe1980/agentforge/runner"
)

// runPeer sends the history text to an A2A peer. Transport and RPC failures
// are reported in the result, not as errors.
func (d *Dispatcher) runPeer(ctx context.Context, path string, participant map[string]any, content core.Content) (*Result, error) {
	endpoint, _ := participant["endpointUrl"].(string)
	if endpoint == "" {
		return nil, core.NewConfigError(stringOf(participant["name"]), "a2a", errors.New("A2A agent config is missing 'endpointUrl'"))
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch.backend.a2a", tracing.String("endpoint", endpoint))
	defer span.End()

	res := &Result{}

	resp, err := d.opts.Peer.Send(ctx, endpoint, content.Text(""))
	if err != nil {
		tracing.RecordError(span, err)
		res.ErrorDetails = append(res.ErrorDetails, fmt.Sprintf("A2A communication failed: %v", err))
		return res, nil
	}

	switch {
	case resp.Result != nil:
		if err := d.docs.AddEvents(context.WithoutCancel(ctx), path, []map[string]any{{"type": "a2a_unary_result", "result": resp.Result}}); err != nil {
			res.Diagnostics.Errorf(component, "", "persisting a2a result failed: %v", err)
		}
		if text := a2a.FinalText(resp.Result); text != "" {
			res.FinalParts = append(res.FinalParts, map[string]any{"text": text})
		}
	case resp.Error != nil:
		res.ErrorDetails = append(res.ErrorDetails, fmt.Sprintf("A2A RPC error: %v", resp.Error))
	}

	tracing.SetOK(span)

	return res, nil
}

// runHosted streams the history text to a deployed hosted agent.
func (d *Dispatcher) runHosted(ctx context.Context, path string, inv Invocation, participant map[string]any, content core.Content) (*Result, error) {
	resource, _ := participant["vertexAiResourceName"].(string)
	if resource == "" || participant["deploymentStatus"] != "deployed" {
		return nil, fmt.Errorf("agent %s is not successfully deployed", inv.AgentID)
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch.backend.hosted", tracing.String("resource", resource))
	defer span.End()

	events, errs := d.opts.Hosted.StreamQuery(ctx, resource, HostedMessage(content), inv.UserID)

	res := NewCollector(d.docs, d.opts.Logger).CollectMaps(ctx, path, events, errs)
	span.SetAttributes(tracing.Int("final_parts", len(res.FinalParts)))

	return res, nil
}

// HostedMessage joins the non-empty text parts of content with newlines.
// Content without text but with files becomes a placeholder naming the count.
func HostedMessage(content core.Content) string {
	var (
		texts []string
		files int
	)

	for _, p := range content.Parts {
		switch v := p.(type) {
		case core.TextPart:
			if v.Text != "" {
				texts = append(texts, v.Text)
			}
		case core.FilePart:
			files++
		}
	}

	if len(texts) == 0 && files > 0 {
		return fmt.Sprintf("[Image Content Provided (%d)]", files)
	}

	return strings.Join(texts, "\n")
}

// runLocal builds doc and runs the tree in-process against a fresh session.
func (d *Dispatcher) runLocal(ctx context.Context, path string, inv Invocation, doc map[string]any, content core.Content) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch.backend.local")
	defer span.End()

	tree, err := d.opts.Builder.Build(ctx, doc, builder.RootContext, 0)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := tree.Close(); err != nil {
			d.opts.Logger.Warn("dispatch.tree.close_failed", "error", err)
		}
	}()

	r := runner.New(tree.Root, func(o *runner.Options) {
		o.MaxModelCalls = d.opts.MaxModelCalls
		o.Logger = d.opts.Logger
	})

	sessionID := util.NewULID()

	runID, events, errs, err := r.Run(ctx, sessionID, content)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("start run: %w", err)
	}

	d.opts.Logger.Info("dispatch.local.started",
		"run_id", runID,
		"session_id", sessionID,
		"root", tree.Root.Name(),
		"user_id", inv.UserID,
	)

	res := NewCollector(d.docs, d.opts.Logger).CollectEvents(ctx, path, events, errs)
	res.Diagnostics = append(tree.Diagnostics, res.Diagnostics...)

	tracing.SetOK(span)

	return res, nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
