package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSONLoggerWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "builder"})

	l.Info("builder.node.start", "node", "root")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "builder.node.start", entry["msg"])
	assert.Equal(t, "builder", entry["component"])
	assert.Equal(t, "root", entry["node"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

type recorder struct{ args [][]any }

func (r *recorder) Debug(_ string, args ...any) { r.args = append(r.args, args) }
func (r *recorder) Info(_ string, args ...any)  { r.args = append(r.args, args) }
func (r *recorder) Warn(_ string, args ...any)  { r.args = append(r.args, args) }
func (r *recorder) Error(_ string, args ...any) { r.args = append(r.args, args) }

func TestWithPrependsAttributes(t *testing.T) {
	rec := &recorder{}
	l := With(rec, "chat_id", "c1")
	l.Info("x", "k", "v")

	require.Len(t, rec.args, 1)
	assert.Equal(t, []any{"chat_id", "c1", "k", "v"}, rec.args[0])

	assert.Equal(t, NoOpLogger{}, With(nil))
}
