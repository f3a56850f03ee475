package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query" description:"search text"`
	Limit int    `json:"limit,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	s := CreateSchema(searchArgs{})
	props := s["properties"].(map[string]any)
	assert.Equal(t, "string", props["query"].(map[string]any)["type"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
	assert.Equal(t, []string{"query"}, s["required"])
}

func TestValidateParameters(t *testing.T) {
	schema, err := CompileSchema(CreateSchema(searchArgs{}))
	require.NoError(t, err)

	assert.NoError(t, ValidateParameters(map[string]any{"query": "go", "limit": 3}, schema))

	err = ValidateParameters(map[string]any{"limit": 3}, schema)
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	err = ValidateParameters(map[string]any{"query": 42}, schema)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "query", ve.Field)

	assert.NoError(t, ValidateParameters(nil, nil))
}

func TestCompileSchemaInvalid(t *testing.T) {
	_, err := CompileSchema(map[string]any{"type": 12})
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello {{.name | upper}} <b>", map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello ADA <b>", out)

	out, err = RenderTemplate("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestRenderTemplate_Placeholders(t *testing.T) {
	state := map[string]any{"topic": "go", "user:name": "ada", "count": 3}

	out, err := RenderTemplate("Write about {topic} for {user:name} ({count}){missing?}.", state)
	require.NoError(t, err)
	assert.Equal(t, "Write about go for ada (3).", out)

	out, err = RenderTemplate(`Reply as JSON like {"a": 1}`, state)
	require.NoError(t, err)
	assert.Equal(t, `Reply as JSON like {"a": 1}`, out)

	_, err = RenderTemplate("Use {outline} and {draft}", state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outline, draft")
}

func TestNewULIDIncreasing(t *testing.T) {
	prev := NewULID()
	for i := 0; i < 100; i++ {
		next := NewULID()
		assert.Greater(t, next, prev)
		prev = next
	}
	assert.Len(t, prev, 26)
}
