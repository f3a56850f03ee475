// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + function/tool calling). The same
// adapter serves every chat-completions compatible endpoint (Azure, DeepSeek,
// Together, Mistral, ...) through BaseURL and header overrides.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI model adapter. Request level GenerateConfig
// values take precedence over Temperature and MaxCompletionTokens.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64

	// APIKey overrides OPENAI_API_KEY.
	APIKey string
	// BaseURL points the client at a compatible endpoint.
	BaseURL string
	// AzureAPIVersion switches to Azure OpenAI authentication (api-key header
	// plus api-version query parameter) against BaseURL.
	AzureAPIVersion string
	// Provider is reported by Info; defaults to "openai".
	Provider string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client := openai.NewClient(clientOptions(opts)...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
		Provider:            "openai",
	}
}

func clientOptions(opts Options) []option.RequestOption {
	var ro []option.RequestOption
	if opts.BaseURL != "" {
		ro = append(ro, option.WithBaseURL(opts.BaseURL))
	}
	if opts.AzureAPIVersion != "" {
		ro = append(ro, option.WithQuery("api-version", opts.AzureAPIVersion))
		if opts.APIKey != "" {
			ro = append(ro, option.WithHeader("api-key", opts.APIKey))
		}
		return ro
	}
	if opts.APIKey != "" {
		ro = append(ro, option.WithAPIKey(opts.APIKey))
	}
	return ro
}

// Generate implements unified streaming / non-streaming generation.
// It adapts OpenAI Chat Completions (with function/tool calling) into model.Response events.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		toolResponses, order := collectToolResponses(req)
		messages := buildMessages(req, toolResponses, order)
		params := m.buildParams(req, messages)
		ro := requestOptions(req.Config)
		if req.Stream {
			m.handleStreaming(ctx, params, ro, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, ro, out, errCh)
	}()
	return out, errCh
}

// collectToolResponses indexes tool (function) responses by id preserving first-seen order.
func collectToolResponses(req model.Request) (map[string]string, []string) {
	responses := map[string]string{}
	order := []string{}
	for _, c := range req.Contents {
		if c.Role != core.RoleTool {
			continue
		}
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok || fr.FunctionResponse.ID == "" {
				continue
			}
			if _, exists := responses[fr.FunctionResponse.ID]; exists {
				continue
			}
			responses[fr.FunctionResponse.ID] = model.ResponseText(fr.FunctionResponse)
			order = append(order, fr.FunctionResponse.ID)
		}
	}
	return responses, order
}

// buildMessages converts normalized contents into OpenAI chat messages while
// attaching matching tool responses immediately after assistant tool calls.
func buildMessages(
	req model.Request,
	toolResponses map[string]string,
	order []string,
) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" && model.SystemText(req.Contents) == "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		if c.Role == core.RoleTool {
			continue
		}
		text := c.Text("")
		switch {
		case c.Role == core.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case c.Role == core.RoleUser:
			messages = append(messages, userMessage(c))
		case core.IsModelRole(c.Role):
			toolCalls, callIDs := extractToolCalls(c)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(text))
				continue
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
			for _, id := range callIDs {
				if id == "" {
					continue
				}
				if resp, ok := toolResponses[id]; ok {
					messages = append(messages, openai.ToolMessage(resp, id))
					delete(toolResponses, id)
				}
			}
		default:
			if text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}
	for _, id := range order {
		if resp, ok := toolResponses[id]; ok {
			messages = append(messages, openai.ToolMessage(resp, id))
		}
	}
	return messages
}

// userMessage keeps inline images as image_url parts; text-only content is
// sent as a plain string.
func userMessage(c core.Content) openai.ChatCompletionMessageParamUnion {
	var parts []openai.ChatCompletionContentPartUnionParam
	hasImage := false
	for _, p := range c.Parts {
		switch v := p.(type) {
		case core.TextPart:
			parts = append(parts, openai.TextContentPart(v.Text))
		case core.FilePart:
			url := v.File.URI
			if v.File.Bytes != "" {
				url = "data:" + v.File.MimeType + ";base64," + v.File.Bytes
			}
			if url == "" || !strings.HasPrefix(v.File.MimeType, "image/") {
				continue
			}
			hasImage = true
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
		}
	}
	if !hasImage {
		return openai.UserMessage(c.Text(""))
	}
	return openai.UserMessage(parts)
}

// requestOptions forwards parameters that have no typed field on the params struct.
func requestOptions(cfg *model.GenerateConfig) []option.RequestOption {
	if cfg == nil || len(cfg.StopSequences) == 0 {
		return nil
	}
	return []option.RequestOption{option.WithJSONSet("stop", cfg.StopSequences)}
}

// extractToolCalls extracts tool call parts and returns OpenAI formatted tool calls + ordered IDs.
func extractToolCalls(c core.Content) ([]openai.ChatCompletionMessageToolCallParam, []string) {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	var callIDs []string
	for _, p := range c.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
				ID:   fc.FunctionCall.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      fc.FunctionCall.Name,
					Arguments: fc.FunctionCall.Arguments,
				},
			})
			callIDs = append(callIDs, fc.FunctionCall.ID)
		}
	}
	return toolCalls, callIDs
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			params.Temperature = openai.Float(*cfg.Temperature)
		}
		if cfg.MaxOutputTokens != nil {
			params.MaxCompletionTokens = openai.Int(int64(*cfg.MaxOutputTokens))
		}
		if cfg.TopP != nil {
			params.TopP = openai.Float(*cfg.TopP)
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// streamState accumulates one streamed choice. Tool-call deltas are keyed by
// their stream index; order keeps first-seen index order for the final chunk.
type streamState struct {
	text  strings.Builder
	calls map[int64]*core.FunctionCall
	order []int64
}

func (s *streamState) call(index int64) *core.FunctionCall {
	if s.calls == nil {
		s.calls = map[int64]*core.FunctionCall{}
	}
	fc, ok := s.calls[index]
	if !ok {
		fc = &core.FunctionCall{}
		s.calls[index] = fc
		s.order = append(s.order, index)
	}
	return fc
}

func (s *streamState) parts() []core.Part {
	parts := make([]core.Part, 0, len(s.order)+1)
	if s.text.Len() > 0 {
		parts = append(parts, core.TextPart{Text: s.text.String()})
	}
	for _, idx := range s.order {
		parts = append(parts, core.FunctionCallPart{FunctionCall: *s.calls[idx]})
	}
	return parts
}

func modelResponse(partial bool, finish string, parts ...core.Part) model.Response {
	return model.Response{
		Partial:      partial,
		Content:      core.Content{Role: core.RoleModel, Parts: parts},
		FinishReason: finish,
	}
}

// handleStreaming forwards text and tool-call deltas as partial responses and
// emits the aggregated turn when a finish reason arrives.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	ro []option.RequestOption,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params, ro...)

	var st streamState
	for stream.Next() {
		for _, ch := range stream.Current().Choices {
			if d := ch.Delta.Content; d != "" {
				st.text.WriteString(d)
				out <- modelResponse(true, "", core.TextPart{Text: d})
			}

			for _, tc := range ch.Delta.ToolCalls {
				fc := st.call(tc.Index)
				if tc.ID != "" {
					fc.ID = tc.ID
				}
				if tc.Function.Name != "" {
					fc.Name = tc.Function.Name
				}
				fc.Arguments += tc.Function.Arguments
				out <- modelResponse(true, "", core.FunctionCallPart{FunctionCall: *fc})
			}

			if ch.FinishReason != "" {
				out <- modelResponse(false, ch.FinishReason, st.parts()...)
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	ro []option.RequestOption,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params, ro...)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- errors.New("openai: no choices returned")
		return
	}

	msg := resp.Choices[0].Message

	var st streamState
	st.text.WriteString(msg.Content)
	for i, tc := range msg.ToolCalls {
		*st.call(int64(i)) = core.FunctionCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}

	out <- modelResponse(false, resp.Choices[0].FinishReason, st.parts()...)
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      m.opts.Provider,
		SupportsTools: true,
	}
}
