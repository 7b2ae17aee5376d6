package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/timeline/internal/config"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/logging"
	"github.com/rendis/timeline/internal/metrics"
	"github.com/rendis/timeline/internal/panel"
	"github.com/rendis/timeline/internal/scheduler"
	"github.com/rendis/timeline/internal/streaming"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live event stream and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "TCP listen address, overrides listen_addr")
	return cmd
}

func runServe(ctx context.Context, g *globalFlags, listen string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := g.open(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()
	if listen != "" {
		a.cfg.ListenAddr = listen
	}
	logger := a.logger

	hub := streaming.NewMemoryHub()
	collector := metrics.New(metrics.Options{Runtime: true})
	sinks := []engine.Sink{
		{Name: "hub", Appender: streaming.NewHubAppender(hub)},
		{Name: "metrics", Appender: collector},
	}
	if a.cfg.NATSURL != "" {
		nc, err := streaming.ConnectNATS(a.cfg.NATSURL, "timeline")
		if err != nil {
			return err
		}
		defer func() { _ = nc.Drain() }()
		sinks = append(sinks, engine.Sink{Name: "nats", Appender: streaming.NewNATSPublisher(nc, a.cfg.NATSSubject)})
		logger.Info("publishing events to NATS", "url", a.cfg.NATSURL, "subject", a.cfg.NATSSubject)
	}

	mgr := a.newManager(engine.WithSinks(sinks...))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mgr.Close(closeCtx); err != nil {
			logger.Error("manager close failed", "error", err)
		}
	}()

	buildHandler := func(cfg config.Config) http.Handler {
		deps := panel.PanelDeps{Manager: mgr, Hub: hub, Logger: logger}
		if cfg.MetricsEnabled {
			deps.Metrics = collector.Handler()
		}
		return panel.NewPanelServer(deps).Handler()
	}
	handler := newPanelHandler(a.cfg, buildHandler)

	if a.cfg.SchedulerEnabled {
		sched := scheduler.NewScheduler(a.store, mgr, logger, scheduler.WithInterval(a.cfg.SchedulerInterval.Std()))
		if n, err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("missed schedule recovery failed", "error", err)
		} else if n > 0 {
			logger.Info("recovered missed schedules", "count", n)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	watcher, err := config.NewWatcher(g.settingsPath(), a.cfg, func(updated config.Config, diff config.Diff) {
		applyConfig(logger, a.level, handler, updated, diff)
	}, logger)
	if err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("timeline server listening", "addr", a.cfg.ListenAddr, "metrics", a.cfg.MetricsEnabled, "scheduler", a.cfg.SchedulerEnabled)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down", "dropped_stream_events", hub.Dropped())
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// applyConfig applies the settings that can change while serving and logs
// the rest.
func applyConfig(logger *slog.Logger, level *slog.LevelVar, handler *panelHandler,
	updated config.Config, diff config.Diff) {
	if diff.LogLevelChanged {
		if lvl, err := logging.ParseLevel(updated.LogLevel); err == nil {
			level.Set(lvl)
			logger.Info("log level changed", "level", updated.LogLevel)
		}
	}
	if diff.MetricsChanged && handler.Reload(updated) {
		logger.Info("metrics endpoint toggled", "enabled", updated.MetricsEnabled)
	}
	if len(diff.RestartNeeded) > 0 {
		logger.Warn("settings changed that need a restart", "settings", diff.RestartNeeded)
	}
}
