package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func drain(events <-chan map[string]any, errs <-chan error) ([]map[string]any, error) {
	var out []map[string]any
	for ev := range events {
		out = append(out, ev)
	}
	return out, <-errs
}

func TestStreamQuery_SSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/p/reasoningEngines/42:streamQuery", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"message": "hello", "userId": "u1"}, body)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: message\ndata: {\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"hi\"}]}}\n\n: keepalive\n\ndata: {\"done\":true}\n\n"))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.BaseURL = srv.URL + "/"
		o.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})
	})

	events, err := drain(c.StreamQuery(context.Background(), "projects/p/reasoningEngines/42", "hello", "u1"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "model", events[0]["content"].(map[string]any)["role"])
	assert.Equal(t, true, events[1]["done"])
}

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("no credentials")
}

func TestStreamQuery_TokenSourceError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.BaseURL = srv.URL
		o.TokenSource = failingTokenSource{}
	})

	events, err := drain(c.StreamQuery(context.Background(), "r", "m", "u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token: no credentials")
	assert.Empty(t, events)
	assert.False(t, called)
}

func TestStreamQuery_NDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{\"a\":1}\n{\"a\":2}\n"))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.BaseURL = srv.URL })

	events, err := drain(c.StreamQuery(context.Background(), "r", "m", "u"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, float64(2), events[1]["a"])
}

func TestStreamQuery_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not deployed", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.BaseURL = srv.URL })

	events, err := drain(c.StreamQuery(context.Background(), "r", "m", "u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, events)
}

func TestStreamQuery_BadEventKeepsEarlierEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("data: {\"a\":1}\n\ndata: not-json\n\n"))
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.BaseURL = srv.URL })

	events, err := drain(c.StreamQuery(context.Background(), "r", "m", "u"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode event 1")
	assert.Len(t, events, 1)
}
