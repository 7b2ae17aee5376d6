// Package config loads server settings. Priority: TIMELINE_* env vars >
// settings file (yaml or json) > defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "500ms" or "1s" in settings files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all timeline server configuration.
type Config struct {
	ListenAddr        string   `json:"listen_addr" yaml:"listen_addr"`
	DBDriver          string   `json:"db_driver" yaml:"db_driver"`
	DBPath            string   `json:"db_path" yaml:"db_path"`
	LogLevel          string   `json:"log_level" yaml:"log_level"`
	LogFormat         string   `json:"log_format" yaml:"log_format"`
	TickInterval      Duration `json:"tick_interval" yaml:"tick_interval"`
	AutoSaveDelay     Duration `json:"autosave_delay" yaml:"autosave_delay"`
	NATSURL           string   `json:"nats_url" yaml:"nats_url"`
	NATSSubject       string   `json:"nats_subject" yaml:"nats_subject"`
	MetricsEnabled    bool     `json:"metrics_enabled" yaml:"metrics_enabled"`
	SchedulerEnabled  bool     `json:"scheduler_enabled" yaml:"scheduler_enabled"`
	SchedulerInterval Duration `json:"scheduler_interval" yaml:"scheduler_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:        ":4200",
		DBDriver:          "sqlite",
		DBPath:            filepath.Join(Dir(), "timeline.db"),
		LogLevel:          "info",
		LogFormat:         "text",
		TickInterval:      Duration(100 * time.Millisecond),
		AutoSaveDelay:     Duration(500 * time.Millisecond),
		NATSSubject:       "timeline.events",
		MetricsEnabled:    true,
		SchedulerEnabled:  true,
		SchedulerInterval: Duration(30 * time.Second),
	}
}

// Dir is the per-user state directory, ~/.timeline.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timeline"
	}
	return filepath.Join(home, ".timeline")
}

// SettingsPath returns the settings file in Dir: settings.yaml when it
// exists, otherwise settings.json.
func SettingsPath() string {
	for _, name := range []string{"settings.yaml", "settings.yml", "settings.json"} {
		p := filepath.Join(Dir(), name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(Dir(), "settings.json")
}

// Load builds the configuration from defaults, the settings file at path
// (missing is fine) and the process environment.
func Load(path string) (Config, error) {
	return LoadWith(path, os.Getenv)
}

// LoadWith is Load with an injectable environment lookup.
func LoadWith(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := map[string]*string{
		"TIMELINE_LISTEN_ADDR":  &cfg.ListenAddr,
		"TIMELINE_DB_DRIVER":    &cfg.DBDriver,
		"TIMELINE_DB_PATH":      &cfg.DBPath,
		"TIMELINE_LOG_LEVEL":    &cfg.LogLevel,
		"TIMELINE_LOG_FORMAT":   &cfg.LogFormat,
		"TIMELINE_NATS_URL":     &cfg.NATSURL,
		"TIMELINE_NATS_SUBJECT": &cfg.NATSSubject,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"TIMELINE_TICK_INTERVAL":      &cfg.TickInterval,
		"TIMELINE_AUTOSAVE_DELAY":     &cfg.AutoSaveDelay,
		"TIMELINE_SCHEDULER_INTERVAL": &cfg.SchedulerInterval,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
		}
	}

	bools := map[string]*bool{
		"TIMELINE_METRICS":   &cfg.MetricsEnabled,
		"TIMELINE_SCHEDULER": &cfg.SchedulerEnabled,
	}
	for key, dst := range bools {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks the values the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite", "libsql":
	default:
		errs = append(errs, fmt.Errorf("db_driver %q must be sqlite or libsql", c.DBDriver))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("tick_interval must be positive"))
	}
	if c.AutoSaveDelay < 0 {
		errs = append(errs, errors.New("autosave_delay must not be negative"))
	}
	if c.SchedulerEnabled && c.SchedulerInterval <= 0 {
		errs = append(errs, errors.New("scheduler_interval must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be text or json", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Diff describes what changed between two configurations.
type Diff struct {
	LogLevelChanged bool
	MetricsChanged  bool
	RestartNeeded   []string // settings that only apply after a restart
}

// Changed reports whether anything differs.
func (d Diff) Changed() bool {
	return d.LogLevelChanged || d.MetricsChanged || len(d.RestartNeeded) > 0
}

// Compare returns the differences from old to updated.
func Compare(old, updated Config) Diff {
	var d Diff
	if !strings.EqualFold(old.LogLevel, updated.LogLevel) {
		d.LogLevelChanged = true
	}
	if old.MetricsEnabled != updated.MetricsEnabled {
		d.MetricsChanged = true
	}
	restart := []struct {
		name    string
		changed bool
	}{
		{"listen_addr", old.ListenAddr != updated.ListenAddr},
		{"db_driver", old.DBDriver != updated.DBDriver},
		{"db_path", old.DBPath != updated.DBPath},
		{"log_format", old.LogFormat != updated.LogFormat},
		{"tick_interval", old.TickInterval != updated.TickInterval},
		{"autosave_delay", old.AutoSaveDelay != updated.AutoSaveDelay},
		{"nats_url", old.NATSURL != updated.NATSURL},
		{"nats_subject", old.NATSSubject != updated.NATSSubject},
		{"scheduler_enabled", old.SchedulerEnabled != updated.SchedulerEnabled},
		{"scheduler_interval", old.SchedulerInterval != updated.SchedulerInterval},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartNeeded = append(d.RestartNeeded, r.name)
		}
	}
	return d
}
