// Package server exposes the dispatcher over HTTP for task-queue delivery.
// A task is one Invocation posted as JSON; the handler runs it and answers
// with the terminal message status.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hupe1980/agentforge/dispatch"
	"github.com/hupe1980/agentforge/logging"
)

// Dispatcher runs invocations.
type Dispatcher interface {
	Handle(ctx context.Context, inv dispatch.Invocation) (*dispatch.Result, error)
}

// Options configures a Server.
type Options struct {
	// Rate is the sustained number of accepted tasks per second.
	Rate  float64
	Burst int
	// Concurrency bounds dispatches running at once.
	Concurrency int
	// Async acknowledges tasks with 202 and runs them in the background.
	Async  bool
	Logger logging.Logger
}

// Server accepts invocations over HTTP.
type Server struct {
	dispatcher Dispatcher
	limiter    *rate.Limiter
	slots      chan struct{}
	async      bool
	logger     logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup

	echo *echo.Echo
}

// TaskResponse is returned for synchronously handled tasks.
type TaskResponse struct {
	Status       string           `json:"status"`
	FinalParts   []map[string]any `json:"finalParts"`
	ErrorDetails []string         `json:"errorDetails"`
}

// New returns a Server with its routes registered.
func New(d Dispatcher, optFns ...func(o *Options)) *Server {
	opts := Options{
		Rate:        10,
		Burst:       20,
		Concurrency: 8,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	s := &Server{
		dispatcher: d,
		limiter:    rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		slots:      make(chan struct{}, opts.Concurrency),
		async:      opts.Async,
		logger:     opts.Logger,
		active:     map[string]context.CancelFunc{},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("server.request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.RegisterRoutes(e)
	s.echo = e

	return s
}

// RegisterRoutes registers routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/tasks", s.HandleTask)
	e.DELETE("/v1/tasks/:chat_id/:message_id", s.CancelTask)
	e.GET("/health", s.Health)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("server.start", "addr", addr)

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting requests and waits for background tasks.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancelAll()
		err = errors.Join(err, ctx.Err())
	}

	s.logger.Info("server.stop")

	return err
}

// HandleTask runs one invocation.
// POST /v1/tasks
func (s *Server) HandleTask(c echo.Context) error {
	var inv dispatch.Invocation
	if err := c.Bind(&inv); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := inv.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if !s.limiter.Allow() {
		s.logger.Warn("server.task.throttled", "chat_id", inv.ChatID, "message_id", inv.AssistantMessageID)
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}

	if s.async {
		ctx := context.WithoutCancel(c.Request().Context())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.acquire(ctx); err != nil {
				return
			}
			defer s.release()
			_, _ = s.run(ctx, inv)
		}()

		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
	}

	ctx := c.Request().Context()
	if err := s.acquire(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no dispatch slot available"})
	}
	defer s.release()

	res, err := s.run(ctx, inv)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, TaskResponse{
		Status:       res.Status(),
		FinalParts:   orEmpty(res.FinalParts),
		ErrorDetails: orEmpty(res.ErrorDetails),
	})
}

// CancelTask cancels a running invocation.
// DELETE /v1/tasks/:chat_id/:message_id
func (s *Server) CancelTask(c echo.Context) error {
	key := taskKey(c.Param("chat_id"), c.Param("message_id"))

	s.mu.Lock()
	cancel, ok := s.active[key]
	s.mu.Unlock()

	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "task not running"})
	}

	cancel()
	s.logger.Info("server.task.cancel", "task", key)

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	s.mu.Lock()
	running := len(s.active)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"running": running,
	})
}

func (s *Server) run(ctx context.Context, inv dispatch.Invocation) (*dispatch.Result, error) {
	key := taskKey(inv.ChatID, inv.AssistantMessageID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.active[key] = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, key)
		s.mu.Unlock()
	}()

	start := time.Now()
	res, err := s.dispatcher.Handle(ctx, inv)
	if err != nil {
		s.logger.Error("server.task.failed", "task", key, "error", err)
		return nil, err
	}

	s.logger.Info("server.task.done", "task", key, "status", res.Status(), "duration", time.Since(start))

	return res, nil
}

func (s *Server) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) release() { <-s.slots }

func (s *Server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cancel := range s.active {
		cancel()
	}
}

func taskKey(chatID, messageID string) string { return chatID + "/" + messageID }

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
