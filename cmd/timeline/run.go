package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/timeline/internal/config"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/tui"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		nodeID string
		manual bool
		resume bool
	)
	cmd := &cobra.Command{
		Use:   "run <timeline-id>",
		Short: "Run a timeline interactively in the terminal",
		Long: `Run drives a stored timeline from the keyboard. The timeline starts at
--node, or its first root when omitted; --manual opens a manual session that
advances one step at a time; --resume continues a saved run instead of
starting over. Events and snapshots are written to the store as usual.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The terminal belongs to the UI, so logs go to a file.
			logPath := filepath.Join(config.Dir(), "run.log")
			if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
				return err
			}
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer logFile.Close()

			a, err := g.open(ctx, logFile)
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

			tl, err := a.store.GetTimeline(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := mgr.Get(ctx, tl.ID)
			if err != nil {
				return err
			}
			if err := startRun(ctx, mgr, e, tl.ID, nodeID, manual, resume); err != nil {
				return err
			}
			return tui.Run(ctx, e, tl.Name)
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "node to start at (default: the first root)")
	cmd.Flags().BoolVar(&manual, "manual", false, "start a manual session")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume the saved run instead of starting over")
	return cmd
}

// startRun starts or resumes e before the UI takes over.
func startRun(ctx context.Context, mgr *engine.Manager, e *engine.Engine, id, nodeID string, manual, resume bool) error {
	if resume {
		if e.CurrentNodeID() == "" {
			return fmt.Errorf("timeline %s has no saved run to resume", id)
		}
		_, err := mgr.Control(ctx, id, engine.ControlResume, "")
		return err
	}
	action := engine.ControlStart
	if manual {
		action = engine.ControlManual
	}
	_, err := mgr.Control(ctx, id, action, nodeID)
	return err
}
