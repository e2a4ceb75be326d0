package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"certflow/internal/certification/scheduler"
	"certflow/internal/platform/httpserver"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run periodic sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	srv := httpserver.New(a.cfg.Server.Addr, a.router())
	g.Go(func() error {
		return httpserver.Run(gctx, srv, a.cfg.Server.ShutdownTimeout, a.logger)
	})
	if a.cfg.Scheduler.Enabled {
		runner := scheduler.NewRunner(a.scheduler, a.cfg.Scheduler.Interval, nil, a.logger)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}
	return g.Wait()
}
