package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the reloaded configuration and what changed.
type ChangeFunc func(updated Config, diff Diff)

// Watcher reloads the settings file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	getenv   func(string) string
	onChange ChangeFunc
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	current Config
	timer   *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher watches path, starting from current. The parent directory is
// watched so editors that replace the file on save are seen.
func NewWatcher(path string, current Config, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: 200 * time.Millisecond,
		getenv:   os.Getenv,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		current:  current,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes how long the watcher waits for writes to settle.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// Current returns the last successfully loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Info("config watcher started", "path", w.path)
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	err := w.fsw.Close()
	w.wg.Wait()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload re-reads the file. Invalid settings are logged and ignored.
func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	updated, err := LoadWith(w.path, w.getenv)
	if err != nil {
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	diff := Compare(w.current, updated)
	w.current = updated
	w.mu.Unlock()

	if !diff.Changed() {
		return
	}
	if len(diff.RestartNeeded) > 0 {
		w.logger.Warn("config changed; restart to apply", "fields", diff.RestartNeeded)
	}
	if w.onChange != nil {
		w.onChange(updated, diff)
	}
}
