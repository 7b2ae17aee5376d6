package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	timelinemcp "github.com/rendis/timeline/pkg/mcp"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the timeline tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stdout carries the protocol; logs go to stderr.
			a, err := g.open(ctx, os.Stderr)
			if err != nil {
				return err
			}
			defer a.close()

			mgr := a.newManager()
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = mgr.Close(closeCtx)
			}()

			srv := timelinemcp.NewTimelineServer(timelinemcp.TimelineServerDeps{Manager: mgr, Logger: a.logger})
			a.logger.Info("mcp server ready", "transport", "stdio")
			return srv.Serve(ctx)
		},
	}
}
