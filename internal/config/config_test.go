package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadWith(filepath.Join(t.TempDir(), "settings.yaml"), envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval.Std())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
db_driver: libsql
log_level: debug
tick_interval: 250ms
scheduler_enabled: false
`), 0o644))

	cfg, err := LoadWith(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "libsql", cfg.DBDriver)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval.Std())
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, "text", cfg.LogFormat, "unset keys keep defaults")
}

func TestLoad_JSONFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"warn","autosave_delay":"2s"}`), 0o644))

	cfg, err := LoadWith(path, envMap(map[string]string{
		"TIMELINE_LOG_LEVEL":     "error",
		"TIMELINE_NATS_URL":      "nats://localhost:4222",
		"TIMELINE_METRICS":       "false",
		"TIMELINE_TICK_INTERVAL": "1s",
	}))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.AutoSaveDelay.Std())
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, time.Second, cfg.TickInterval.Std())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("tick_interval: soon\n"), 0o644))
	_, err := LoadWith(bad, envMap(nil))
	require.Error(t, err)

	_, err = LoadWith("", envMap(map[string]string{"TIMELINE_METRICS": "maybe"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TIMELINE_METRICS")

	_, err = LoadWith("", envMap(map[string]string{"TIMELINE_DB_DRIVER": "postgres"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_driver")
}

func TestCompare(t *testing.T) {
	old := Default()
	updated := old
	assert.False(t, Compare(old, updated).Changed())

	updated.LogLevel = "DEBUG"
	updated.ListenAddr = ":1"
	updated.TickInterval = Duration(time.Second)
	d := Compare(old, updated)
	assert.True(t, d.LogLevelChanged)
	assert.False(t, d.MetricsChanged)
	assert.Equal(t, []string{"listen_addr", "tick_interval"}, d.RestartNeeded)

	updated = old
	updated.MetricsEnabled = !old.MetricsEnabled
	d = Compare(old, updated)
	assert.True(t, d.MetricsChanged)
	assert.Empty(t, d.RestartNeeded)
	assert.True(t, d.Changed())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	changes := make(chan Diff, 4)
	w, err := NewWatcher(path, Default(), func(_ Config, d Diff) { changes <- d }, nil)
	require.NoError(t, err)
	w.getenv = envMap(nil)
	w.SetDebounce(10 * time.Millisecond)
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	select {
	case d := <-changes:
		assert.True(t, d.LogLevelChanged)
		assert.Empty(t, d.RestartNeeded)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
	assert.Equal(t, "debug", w.Current().LogLevel)
}

func TestWatcher_IgnoresInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	w, err := NewWatcher(path, Default(), func(Config, Diff) { t.Error("unexpected change") }, nil)
	require.NoError(t, err)
	w.getenv = envMap(nil)

	require.NoError(t, os.WriteFile(path, []byte("db_driver: oracle\n"), 0o644))
	w.reload()
	assert.Equal(t, "sqlite", w.Current().DBDriver)
	require.NoError(t, w.Stop())
}
