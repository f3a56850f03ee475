package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentforge/core"
	"github.com/hupe1980/agentforge/model"
)

func TestBuildMessagesPlacesToolResultsInUserTurn(t *testing.T) {
	contents := []core.Content{
		core.NewTextContent(core.RoleSystem, "sys"),
		core.NewTextContent(core.RoleUser, "weather?"),
		{Role: core.RoleModel, Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "t1", Name: "weather", Arguments: `{"city":"Berlin"}`}}}},
		{Role: core.RoleTool, Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "t1", Name: "weather", Response: "sunny"}}}},
	}

	msgs := buildMessages(contents)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestBuildParamsAppliesConfig(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })

	temp, maxTok, topK := 0.1, 256, 5
	params := m.buildParams(model.Request{
		Instructions: "be brief",
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Config:       &model.GenerateConfig{Temperature: &temp, MaxOutputTokens: &maxTok, TopK: &topK, StopSequences: []string{"##"}},
	})

	assert.Equal(t, int64(256), params.MaxTokens)
	assert.Equal(t, []string{"##"}, params.StopSequences)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be brief", params.System[0].Text)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields([]any{"a", 1}))
	assert.Equal(t, []string{"b"}, requiredFields([]string{"b"}))
	assert.Nil(t, requiredFields(nil))
}
