package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentforge"
	"github.com/hupe1980/agentforge/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task endpoint",
	Long: `Serve accepts task-queue invocations on POST /v1/tasks. Each task names
a chat and assistant message plus an agent or model id; the run result is
written to the message document.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().Bool("async", false, "Acknowledge tasks before running them")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	forge, err := agentforge.FromConfig(ctx, cfg)
	if err != nil {
		return err
	}
	defer forge.Close()

	srv := server.New(forge.Dispatcher(), func(o *server.Options) {
		o.Rate = cfg.Server.Rate
		o.Burst = cfg.Server.Burst
		o.Concurrency = cfg.Server.Concurrency
		o.Async = cfg.Server.Async
		o.Logger = forge.Logger()
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
