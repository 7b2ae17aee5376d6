package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/timeline/internal/logging"
)

// DefaultAutoSaveDelay is the debounce window for snapshot persistence.
const DefaultAutoSaveDelay = 500 * time.Millisecond

// SnapshotSaver persists an engine snapshot under a timeline id.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, id string, snapshot json.RawMessage) error
}

// AutoSaver persists an engine's snapshot after its listeners fire, debounced
// by delay. While changes keep arriving (a running action notifies every
// tick) a save is still forced once maxWait has passed since the first
// unsaved change.
type AutoSaver struct {
	engine  *Engine
	saver   SnapshotSaver
	delay   time.Duration
	maxWait time.Duration
	policy  RetryPolicy
	logger  *slog.Logger

	mu           sync.Mutex
	timer        *time.Timer
	firstPending time.Time
	listener     ListenerID
	closed       bool
	saves        int
}

// NewAutoSaver attaches a debounced save listener to e.
func NewAutoSaver(e *Engine, saver SnapshotSaver, delay time.Duration, logger *slog.Logger) *AutoSaver {
	if delay <= 0 {
		delay = DefaultAutoSaveDelay
	}
	if logger == nil {
		logger = e.logger
	}
	a := &AutoSaver{
		engine:  e,
		saver:   saver,
		delay:   delay,
		maxWait: 10 * delay,
		policy:  DefaultSaveRetryPolicy,
		logger:  logging.Correlated(logger),
	}
	a.listener = e.AddListener(a.schedule)
	return a
}

// SetRetryPolicy replaces the retry policy used for failed saves.
func (a *AutoSaver) SetRetryPolicy(p RetryPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policy = p
}

func (a *AutoSaver) schedule() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	now := time.Now()
	if a.timer == nil {
		a.firstPending = now
		a.timer = time.AfterFunc(a.delay, a.fire)
		return
	}
	if now.Sub(a.firstPending) >= a.maxWait {
		return
	}
	a.timer.Reset(a.delay)
}

func (a *AutoSaver) fire() {
	a.mu.Lock()
	a.timer = nil
	a.mu.Unlock()
	ctx, cancel := context.WithTimeout(logging.WithTimelineID(context.Background(), a.engine.TimelineID()), 10*time.Second)
	defer cancel()
	if err := a.save(ctx); err != nil {
		a.logger.ErrorContext(ctx, "autosave failed", "error", err)
	}
}

// Flush cancels any pending debounce and saves immediately.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	return a.save(ctx)
}

// Saves returns how many snapshots were written successfully.
func (a *AutoSaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

// Close detaches the listener and drops any pending save.
func (a *AutoSaver) Close() {
	a.engine.RemoveListener(a.listener)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *AutoSaver) save(ctx context.Context) error {
	data, err := a.engine.MarshalJSON()
	if err != nil {
		return err
	}
	a.mu.Lock()
	policy := a.policy
	a.mu.Unlock()

	id := a.engine.TimelineID()
	err = policy.Do(ctx, func(ctx context.Context) error {
		return a.saver.SaveSnapshot(ctx, id, data)
	}, func(attempt int, err error) {
		a.logger.WarnContext(logging.WithTimelineID(ctx, id), "autosave retry", "attempt", attempt, "error", err)
	})
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.saves++
	a.mu.Unlock()
	return nil
}
