// Package hosted streams queries to remotely hosted agents. A query is a
// POST of {message, userId} to "{BaseURL}/{resource}:streamQuery"; the reply
// is a server-sent event stream whose data lines are JSON event objects.
// Newline-delimited JSON replies are accepted as well.
package hosted

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"

	"github.com/hupe1980/agentforge/internal/tracing"
	"github.com/hupe1980/agentforge/logging"
)

// DefaultBaseURL is the regional agent engine endpoint.
const DefaultBaseURL = "https://us-central1-aiplatform.googleapis.com/v1"

const maxLineSize = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	// TokenSource supplies the access token of each query. Nil sends
	// unauthenticated requests.
	TokenSource oauth2.TokenSource
	HTTPClient  *http.Client
	MaxFailures uint32
	OpenTimeout time.Duration
	Logger      logging.Logger
}

// Client talks to hosted agents.
type Client struct {
	opts    Options
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewClient returns a Client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:     DefaultBaseURL,
		HTTPClient:  http.DefaultClient,
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "hosted",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("hosted.breaker.state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{opts: opts, breaker: cb}
}

// StreamQuery sends message to the hosted agent identified by resource and
// streams its events. The event channel is closed when the stream ends; at
// most one error is delivered. The breaker only guards stream setup.
func (c *Client) StreamQuery(ctx context.Context, resource, message, userID string) (<-chan map[string]any, <-chan error) {
	events := make(chan map[string]any)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		ctx, span := tracing.StartSpan(ctx, "hosted.stream_query", tracing.String("resource", resource))
		defer span.End()

		res, err := c.breaker.Execute(func() (*http.Response, error) {
			return c.open(ctx, resource, message, userID)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("hosted agent circuit open: %w", err)
			}
			tracing.RecordError(span, err)
			errs <- err
			return
		}
		defer res.Body.Close()

		n, err := readStream(ctx, res.Body, events)
		span.SetAttributes(tracing.Int("events", n))
		if err != nil {
			tracing.RecordError(span, err)
			errs <- err
			return
		}

		tracing.SetOK(span)
	}()

	return events, errs
}

func (c *Client) open(ctx context.Context, resource, message, userID string) (*http.Response, error) {
	body, err := json.Marshal(map[string]any{"message": message, "userId": userID})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	url := strings.TrimRight(c.opts.BaseURL, "/") + "/" + strings.TrimLeft(resource, "/") + ":streamQuery"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.opts.TokenSource != nil {
		tok, err := c.opts.TokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	c.opts.Logger.Debug("hosted.query.open", "resource", resource, "user_id", userID)

	res, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
		return nil, fmt.Errorf("hosted agent returned %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}

	return res, nil
}

// readStream decodes SSE data lines (or bare JSON lines) into events.
func readStream(ctx context.Context, r io.Reader, out chan<- map[string]any) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var (
		n    int
		data []string
	)

	flush := func() error {
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]

		if payload == "[DONE]" {
			return nil
		}

		var ev map[string]any
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("decode event %d: %w", n, err)
		}

		select {
		case out <- ev:
			n++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		switch {
		case line == "":
			if err := flush(); err != nil {
				return n, err
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "{"):
			data = append(data, line)
			if err := flush(); err != nil {
				return n, err
			}
		default:
			// event:, id:, retry: and comments
		}
	}

	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read stream: %w", err)
	}

	return n, flush()
}
