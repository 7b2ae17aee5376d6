package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/timeline/internal/config"
	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/logging"
	"github.com/rendis/timeline/internal/store"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
}

// settingsPath is the file the configuration is read from and watched at.
func (g *globalFlags) settingsPath() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.SettingsPath()
}

// load resolves the configuration. Flags win over env vars, env vars over
// the settings file, the file over defaults.
func (g *globalFlags) load() (config.Config, error) {
	cfg, err := config.Load(g.settingsPath())
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app is an opened runtime: configuration, logger and migrated store.
type app struct {
	cfg    config.Config
	level  *slog.LevelVar
	logger *slog.Logger
	store  *store.SQLStore
}

// open loads the configuration, builds the logger writing to logOut and
// opens the store.
func (g *globalFlags) open(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}

	lvl, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	level := new(slog.LevelVar)
	level.Set(lvl)
	logger, err := logging.New(logOut, cfg.LogFormat, level)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	if cfg.DBDriver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	st, err := store.Open(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.Debug("store opened", "driver", cfg.DBDriver, "path", cfg.DBPath)

	return &app{cfg: cfg, level: level, logger: logger, store: st}, nil
}

func (a *app) close() error {
	return a.store.Close()
}

// newManager builds a Manager with the configured tick and auto-save timing.
func (a *app) newManager(opts ...engine.ManagerOption) *engine.Manager {
	base := []engine.ManagerOption{
		engine.WithManagerLogger(a.logger),
		engine.WithAutoSaveDelay(a.cfg.AutoSaveDelay.Std()),
		engine.WithEngineOptions(
			engine.WithLogger(a.logger),
			engine.WithTickInterval(a.cfg.TickInterval.Std()),
		),
	}
	return engine.NewManager(a.store, append(base, opts...)...)
}

// printJSON writes v indented to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
