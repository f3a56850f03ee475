// Package a2a sends unary message/send calls to peer agents over the A2A
// JSON-RPC binding. The request is built and sent with the a2a-go client; the
// raw JSON-RPC envelope of the reply is kept so results are persisted exactly
// as the peer returned them, including parts a2a-go does not model such as
// text-delta.
package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	protocol "github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/sony/gobreaker/v2"

	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
)

// DefaultTimeout bounds one message/send round trip.
const DefaultTimeout = 120 * time.Second

const (
	defaultMaxFailures uint32 = 5
	defaultOpenTimeout        = 30 * time.Second
)

// Response is a JSON-RPC response envelope.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id"`
	Result  map[string]any `json:"result,omitempty"`
	Error   *RPCError      `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("code %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// HTTPClient supplies the transport; its Timeout is ignored in favor of
	// Timeout.
	HTTPClient *http.Client
	// MaxFailures consecutive transport failures open the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open.
	OpenTimeout time.Duration
	Logger      logging.Logger
}

// Client sends messages to A2A peers.
type Client struct {
	transport http.RoundTripper
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker[*Response]
	logger    logging.Logger
}

// NewClient returns a Client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		Timeout:     DefaultTimeout,
		HTTPClient:  http.DefaultClient,
		MaxFailures: defaultMaxFailures,
		OpenTimeout: defaultOpenTimeout,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "a2a",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("a2a.breaker.state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	transport := http.DefaultTransport
	if opts.HTTPClient != nil && opts.HTTPClient.Transport != nil {
		transport = opts.HTTPClient.Transport
	}

	return &Client{transport: transport, timeout: opts.Timeout, breaker: cb, logger: logger}
}

// Send delivers text to endpoint as a user message with one text part. An
// RPC-level error is returned in Response.Error, not as err, and does not
// count against the breaker.
func (c *Client) Send(ctx context.Context, endpoint, text string) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "a2a.send", tracing.String("endpoint", endpoint))
	defer span.End()

	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.send(ctx, strings.TrimRight(endpoint, "/"), text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("a2a circuit open: %w", err)
		}
		tracing.RecordError(span, err)
		return nil, err
	}

	tracing.SetOK(span)

	return resp, nil
}

func (c *Client) send(ctx context.Context, endpoint, text string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rec := &recorder{base: c.transport}

	client, err := a2aclient.NewFromEndpoints(ctx,
		[]protocol.AgentInterface{{URL: endpoint, Transport: protocol.TransportProtocolJSONRPC}},
		a2aclient.WithJSONRPCTransport(&http.Client{Transport: rec}),
	)
	if err != nil {
		return nil, fmt.Errorf("create a2a client: %w", err)
	}

	msg := protocol.NewMessage(protocol.MessageRoleUser, protocol.TextPart{Text: text})

	c.logger.Debug("a2a.send", "endpoint", endpoint, "message_id", msg.ID)

	_, sendErr := client.SendMessage(ctx, &protocol.MessageSendParams{Message: msg})

	if cerr := ctx.Err(); cerr != nil {
		return nil, fmt.Errorf("a2a send: %w", cerr)
	}

	status, body, ok := rec.last()
	if !ok {
		if sendErr == nil {
			sendErr = errors.New("a2a send: no response")
		}
		return nil, sendErr
	}

	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, Body: strings.TrimSpace(string(body))}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Result == nil && out.Error == nil {
		if sendErr != nil {
			return nil, sendErr
		}
		return nil, errors.New("decode response: neither result nor error")
	}

	if sendErr != nil && out.Error == nil {
		// The envelope carries a result the typed client could not model.
		c.logger.Debug("a2a.send.untyped_result", "endpoint", endpoint, "error", sendErr)
	}

	return &out, nil
}

// recorder keeps the status and body of the last response passing through
// it and hands the body on unchanged.
type recorder struct {
	base http.RoundTripper

	mu     sync.Mutex
	status int
	body   []byte
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := r.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	r.mu.Lock()
	r.status, r.body = res.StatusCode, body
	r.mu.Unlock()

	res.Body = io.NopCloser(bytes.NewReader(body))

	return res, nil
}

func (r *recorder) last() (int, []byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.body, r.status != 0
}

// FinalText concatenates the text (or text-delta) of every artifact part of
// a message/send result.
func FinalText(result map[string]any) string {
	var b strings.Builder

	artifacts, _ := result["artifacts"].([]any)
	for _, a := range artifacts {
		artifact, _ := a.(map[string]any)
		parts, _ := artifact["parts"].([]any)
		for _, p := range parts {
			part, _ := p.(map[string]any)
			if s, _ := part["text"].(string); s != "" {
				b.WriteString(s)
			} else if s, _ := part["text-delta"].(string); s != "" {
				b.WriteString(s)
			}
		}
	}

	return b.String()
}
