// Package bedrock adapts the AWS Bedrock Converse API to model.Model.
// Credentials come from the default AWS chain (env, shared config, role).
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/model"
)

// converseAPI is the subset of the Bedrock runtime client the adapter uses.
type converseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock adapter.
type Options struct {
	Model     string
	Region    string
	MaxTokens int32
}

// Model implements model.Model via Bedrock Converse.
type Model struct {
	client converseAPI
	opts   Options
}

func defaultOptions() Options {
	return Options{Region: "us-east-1", MaxTokens: 4096}
}

// NewModel loads the default AWS config for the region and creates a client.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Model{client: bedrockruntime.NewFromConfig(awsCfg), opts: opts}, nil
}

// NewModelFromClient wraps an existing Converse client.
func NewModelFromClient(client converseAPI, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate performs one Converse call. Streaming requests receive the final
// response only.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		ctx, span := tracing.StartSpan(ctx, "model.bedrock.converse", tracing.String("model", m.opts.Model))
		defer span.End()

		output, err := m.client.Converse(ctx, m.buildInput(req))
		if err != nil {
			err = mapError(err)
			tracing.RecordError(span, err)
			errCh <- err
			return
		}

		out <- fromOutput(output)
	}()

	return out, errCh
}

func (m *Model) buildInput(req model.Request) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(m.opts.Model),
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(m.opts.MaxTokens)},
	}

	if cfg := req.Config; cfg != nil {
		if cfg.MaxOutputTokens != nil {
			input.InferenceConfig.MaxTokens = aws.Int32(int32(*cfg.MaxOutputTokens))
		}
		if cfg.Temperature != nil {
			input.InferenceConfig.Temperature = aws.Float32(float32(*cfg.Temperature))
		}
		if cfg.TopP != nil {
			input.InferenceConfig.TopP = aws.Float32(float32(*cfg.TopP))
		}
		if len(cfg.StopSequences) > 0 {
			input.InferenceConfig.StopSequences = cfg.StopSequences
		}
		if cfg.TopK != nil {
			input.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{"top_k": *cfg.TopK})
		}
	}

	system := model.SystemText(req.Contents)
	if system == "" {
		system = req.Instructions
	}
	if system != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}

	for _, c := range req.Contents {
		if msg := toMessage(c); msg != nil {
			input.Messages = append(input.Messages, *msg)
		}
	}

	if len(req.Tools) > 0 {
		input.ToolConfig = toToolConfig(req.Tools)
	}

	return input
}

func toMessage(c core.Content) *types.Message {
	msg := &types.Message{}

	switch {
	case c.Role == core.RoleSystem:
		return nil
	case c.Role == core.RoleTool:
		msg.Role = types.ConversationRoleUser
		for _, p := range c.Parts {
			fr, ok := p.(core.FunctionResponsePart)
			if !ok {
				continue
			}
			block := types.ToolResultBlock{
				ToolUseId: aws.String(fr.FunctionResponse.ID),
				Content: []types.ToolResultContentBlock{
					&types.ToolResultContentBlockMemberText{Value: model.ResponseText(fr.FunctionResponse)},
				},
			}
			if fr.FunctionResponse.Error != "" {
				block.Status = types.ToolResultStatusError
			}
			msg.Content = append(msg.Content, &types.ContentBlockMemberToolResult{Value: block})
		}
	case core.IsModelRole(c.Role):
		msg.Role = types.ConversationRoleAssistant
		for _, p := range c.Parts {
			switch v := p.(type) {
			case core.TextPart:
				if v.Text != "" {
					msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: v.Text})
				}
			case core.FunctionCallPart:
				input := map[string]any{}
				if v.FunctionCall.Arguments != "" {
					_ = json.Unmarshal([]byte(v.FunctionCall.Arguments), &input)
				}
				msg.Content = append(msg.Content, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(v.FunctionCall.ID),
					Name:      aws.String(v.FunctionCall.Name),
					Input:     document.NewLazyDocument(input),
				}})
			}
		}
	default:
		msg.Role = types.ConversationRoleUser
		for _, p := range c.Parts {
			if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
				msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: tp.Text})
			}
		}
	}

	if len(msg.Content) == 0 {
		return nil
	}

	return msg
}

func toToolConfig(tools []model.ToolDefinition) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		schema := t.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		specs = append(specs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Function.Name),
			Description: aws.String(t.Function.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	return &types.ToolConfiguration{Tools: specs}
}

func fromOutput(output *bedrockruntime.ConverseOutput) model.Response {
	resp := model.Response{
		Content:      core.Content{Role: core.RoleModel},
		FinishReason: string(output.StopReason),
	}

	if output.Usage != nil {
		in, outTok := int(aws.ToInt32(output.Usage.InputTokens)), int(aws.ToInt32(output.Usage.OutputTokens))
		resp.Usage = &model.TokenUsage{PromptTokens: in, CompletionTokens: outTok, TotalTokens: in + outTok}
	}

	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}

	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			resp.Content.Parts = append(resp.Content.Parts, core.TextPart{Text: b.Value})
		case *types.ContentBlockMemberToolUse:
			resp.Content.Parts = append(resp.Content.Parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: documentJSON(b.Value.Input),
			}})
		}
	}

	return resp
}

func documentJSON(doc document.Interface) string {
	if doc == nil {
		return "{}"
	}
	var v any
	if err := doc.UnmarshalSmithyDocument(&v); err != nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func mapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			return fmt.Errorf("%w: %v", model.ErrRateLimited, err)
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
		case code == "ValidationException" && strings.Contains(err.Error(), "too long"):
			return fmt.Errorf("%w: %v", model.ErrContextOverflow, err)
		case code == "ModelNotReadyException" || code == "ServiceUnavailableException" || code == "InternalServerException":
			return fmt.Errorf("%w: %v", model.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("bedrock converse: %w", err)
}

// Info returns metadata describing the adapter.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "bedrock", SupportsTools: true}
}
