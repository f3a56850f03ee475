package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every JSON-RPC call with reply, echoing the request id.
// Each decoded request is passed to onRequest when set.
func rpcServer(t *testing.T, reply string, onRequest func(r *http.Request, req map[string]any)) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		if onRequest != nil {
			onRequest(r, req)
		}

		id, _ := json.Marshal(req["id"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,%s}`, id, reply)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestSend_Result(t *testing.T) {
	var (
		path string
		got  map[string]any
	)

	srv := rpcServer(t, `"result":{"kind":"task","id":"t1","contextId":"c1","status":{"state":"completed"},`+
		`"artifacts":[{"artifactId":"a1","parts":[{"kind":"text","text":"Hello "},{"text-delta":"world"}]}]}`,
		func(r *http.Request, req map[string]any) {
			path = r.URL.Path
			got = req
		})

	c := NewClient()
	resp, err := c.Send(context.Background(), srv.URL+"/rpc/", "hi")
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	assert.Equal(t, "Hello world", FinalText(resp.Result))
	assert.Equal(t, "t1", resp.Result["id"])

	assert.Equal(t, "/rpc", path)
	assert.Equal(t, "2.0", got["jsonrpc"])
	assert.Equal(t, "message/send", got["method"])
	assert.NotEmpty(t, got["id"])

	msg := got["params"].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.NotEmpty(t, msg["messageId"])

	parts := msg["parts"].([]any)
	require.Len(t, parts, 1)
	assert.Equal(t, "text", parts[0].(map[string]any)["kind"])
	assert.Equal(t, "hi", parts[0].(map[string]any)["text"])
}

func TestSend_RPCError(t *testing.T) {
	srv := rpcServer(t, `"error":{"code":-32601,"message":"Method not found"}`, nil)

	resp, err := NewClient().Send(context.Background(), srv.URL, "hi")
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "code -32601: Method not found", resp.Error.Error())
}

func TestSend_RPCErrorKeepsBreakerClosed(t *testing.T) {
	srv := rpcServer(t, `"error":{"code":-32000,"message":"busy"}`, nil)

	c := NewClient(func(o *Options) { o.MaxFailures = 1 })

	for range 3 {
		resp, err := c.Send(context.Background(), srv.URL, "hi")
		require.NoError(t, err)
		require.NotNil(t, resp.Error)
	}
}

func TestSend_HTTPErrorOpensBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) {
		o.MaxFailures = 2
		o.OpenTimeout = time.Minute
	})

	for range 2 {
		_, err := c.Send(context.Background(), srv.URL, "hi")
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
		assert.Equal(t, "down", se.Body)
	}

	_, err := c.Send(context.Background(), srv.URL, "hi")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, calls)
}

func TestSend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(func(o *Options) { o.Timeout = 50 * time.Millisecond })
	_, err := c.Send(context.Background(), srv.URL, "hi")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFinalText_Empty(t *testing.T) {
	assert.Empty(t, FinalText(map[string]any{"status": "completed"}))
}
