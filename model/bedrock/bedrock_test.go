package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/model"
)

type mockConverse struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (m *mockConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	return m.output, m.err
}

func drain(t *testing.T, respCh <-chan model.Response, errCh <-chan error) ([]model.Response, error) {
	t.Helper()
	var out []model.Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func TestGenerateText(t *testing.T) {
	mock := &mockConverse{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Hello from Bedrock!"}},
		}},
		StopReason: types.StopReasonEndTurn,
		Usage:      &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5)},
	}}

	m := NewModelFromClient(mock, func(o *Options) { o.Model = "anthropic.claude-3-5-sonnet" })

	temp := 0.2
	topK := 40
	respCh, errCh := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{
			core.NewTextContent(core.RoleSystem, "You are helpful."),
			core.NewTextContent(core.RoleUser, "Hello"),
		},
		Config: &model.GenerateConfig{Temperature: &temp, TopK: &topK, StopSequences: []string{"END"}},
	})

	resps, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "Hello from Bedrock!", resps[0].Content.Text(""))
	assert.Equal(t, 15, resps[0].Usage.TotalTokens)

	require.NotNil(t, mock.input)
	assert.Equal(t, "anthropic.claude-3-5-sonnet", aws.ToString(mock.input.ModelId))
	assert.Len(t, mock.input.System, 1)
	assert.Len(t, mock.input.Messages, 1)
	assert.InDelta(t, 0.2, aws.ToFloat32(mock.input.InferenceConfig.Temperature), 0.001)
	assert.Equal(t, []string{"END"}, mock.input.InferenceConfig.StopSequences)
	assert.NotNil(t, mock.input.AdditionalModelRequestFields)
}

func TestGenerateToolUse(t *testing.T) {
	mock := &mockConverse{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
				ToolUseId: aws.String("tu-1"),
				Name:      aws.String("lookup"),
				Input:     document.NewLazyDocument(map[string]any{"q": "go"}),
			}}},
		}},
	}}

	m := NewModelFromClient(mock)
	respCh, errCh := m.Generate(context.Background(), model.Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "find go")},
		Tools: []model.ToolDefinition{{Type: "function", Function: model.FunctionDefinition{
			Name: "lookup", Description: "search", Parameters: map[string]any{"type": "object"},
		}}},
	})

	resps, err := drain(t, respCh, errCh)
	require.NoError(t, err)
	require.Len(t, resps, 1)

	ev := core.NewEvent("", "a")
	ev.Content = &resps[0].Content
	calls := ev.GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu-1", calls[0].ID)
	assert.JSONEq(t, `{"q":"go"}`, calls[0].Arguments)
	require.NotNil(t, mock.input.ToolConfig)
	assert.Len(t, mock.input.ToolConfig.Tools, 1)
}

func TestToolRoundTripMessages(t *testing.T) {
	call := core.Content{Role: core.RoleModel, Parts: []core.Part{
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "tu-1", Name: "lookup", Arguments: `{"q":"go"}`}},
	}}
	result := core.Content{Role: core.RoleTool, Parts: []core.Part{
		core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "tu-1", Name: "lookup", Error: "boom"}},
	}}

	assistant := toMessage(call)
	require.NotNil(t, assistant)
	assert.Equal(t, types.ConversationRoleAssistant, assistant.Role)

	user := toMessage(result)
	require.NotNil(t, user)
	assert.Equal(t, types.ConversationRoleUser, user.Role)
	tr, ok := user.Content[0].(*types.ContentBlockMemberToolResult)
	require.True(t, ok)
	assert.Equal(t, types.ToolResultStatusError, tr.Value.Status)

	assert.Nil(t, toMessage(core.NewTextContent(core.RoleSystem, "sys")))
}

func TestErrorMapping(t *testing.T) {
	cases := map[string]error{
		"ThrottlingException":         model.ErrRateLimited,
		"AccessDeniedException":       model.ErrUnauthorized,
		"ServiceUnavailableException": model.ErrUnavailable,
	}
	for code, want := range cases {
		mock := &mockConverse{err: &smithy.GenericAPIError{Code: code, Message: "x"}}
		respCh, errCh := NewModelFromClient(mock).Generate(context.Background(), model.Request{
			Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		})
		_, err := drain(t, respCh, errCh)
		assert.ErrorIs(t, err, want, code)
	}

	err := mapError(errors.New("plain"))
	assert.EqualError(t, err, "bedrock converse: plain")
}
