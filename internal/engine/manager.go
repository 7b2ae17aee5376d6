package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/timeline/internal/logging"
	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger shared by the manager and its engines.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithSinks adds event sinks after the store sink.
func WithSinks(sinks ...Sink) ManagerOption {
	return func(m *Manager) { m.extraSinks = append(m.extraSinks, sinks...) }
}

// WithEngineOptions applies opts to every engine the manager creates.
func WithEngineOptions(opts ...Option) ManagerOption {
	return func(m *Manager) { m.engineOpts = append(m.engineOpts, opts...) }
}

// WithAutoSaveDelay sets the snapshot debounce window.
func WithAutoSaveDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.autoSaveDelay = d }
}

// WithCircuitBreakers replaces the per-sink circuit breakers.
func WithCircuitBreakers(cb *CircuitBreakers) ManagerOption {
	return func(m *Manager) { m.breakers = cb }
}

type managed struct {
	engine *Engine
	saver  *AutoSaver
}

// Manager owns one engine per stored timeline. Engines are loaded lazily
// from the store, emit their events through a fan-out (store first), and
// persist their snapshot through an AutoSaver.
type Manager struct {
	store         store.Store
	logger        *slog.Logger
	engineOpts    []Option
	extraSinks    []Sink
	autoSaveDelay time.Duration
	breakers      *CircuitBreakers
	fanout        *FanOut

	mu      sync.Mutex
	engines map[string]*managed
}

// NewManager creates a manager over st.
func NewManager(st store.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         st,
		logger:        slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		autoSaveDelay: DefaultAutoSaveDelay,
		engines:       make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.Correlated(m.logger)
	sinks := []Sink{
		{Name: "store", Appender: st},
		{Name: "sessions", Appender: &sessionRecorder{store: st, logger: m.logger}},
	}
	sinks = append(sinks, m.extraSinks...)
	m.fanout = NewFanOut(m.breakers, m.logger, sinks...)
	return m
}

// AddSink attaches another event sink to every engine, loaded or not.
func (m *Manager) AddSink(s Sink) {
	m.fanout.Add(s)
}

// Store returns the backing store.
func (m *Manager) Store() store.Store { return m.store }

// Create stores a new timeline. A nil snapshot creates an empty graph.
func (m *Manager) Create(ctx context.Context, name, description string, snap *Snapshot) (*store.Timeline, error) {
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "timeline name is required")
	}
	var data []byte
	var err error
	if snap == nil {
		data, err = New().MarshalJSON()
	} else {
		if err := checkSnapshot(*snap); err != nil {
			return nil, err
		}
		data, err = json.Marshal(snap)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	tl := &store.Timeline{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Snapshot:    data,
	}
	if err := m.store.CreateTimeline(ctx, tl); err != nil {
		return nil, err
	}
	m.logger.InfoContext(logging.WithTimelineID(ctx, tl.ID), "timeline created", "name", name)
	return tl, nil
}

// Get returns the live engine for id, loading it from the store on first use.
func (m *Manager) Get(ctx context.Context, id string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if me, ok := m.engines[id]; ok {
		return me.engine, nil
	}

	tl, err := m.store.GetTimeline(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := append([]Option{
		WithLogger(m.logger),
		WithTimelineID(id),
	}, m.engineOpts...)
	e := New(opts...)
	if err := e.FromJSON(tl.Snapshot); err != nil {
		return nil, fmt.Errorf("load timeline %s: %w", id, err)
	}
	// The appender is attached after loading so the restore is not logged as an event.
	e.appender = m.fanout
	m.engines[id] = &managed{
		engine: e,
		saver:  NewAutoSaver(e, m.store, m.autoSaveDelay, m.logger),
	}
	m.logger.DebugContext(logging.WithTimelineID(ctx, id), "timeline loaded")
	return e, nil
}

// Loaded returns the ids of the engines currently in memory.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the snapshot of a loaded engine immediately.
func (m *Manager) Save(ctx context.Context, id string) error {
	m.mu.Lock()
	me, ok := m.engines[id]
	m.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "timeline %q is not loaded", id)
	}
	return me.saver.Flush(ctx)
}

// StartTimeline loads the timeline and starts it at nodeID, in manual mode
// when manual is set.
func (m *Manager) StartTimeline(ctx context.Context, timelineID, nodeID string, manual bool) error {
	e, err := m.Get(ctx, timelineID)
	if err != nil {
		return err
	}
	if manual {
		return e.StartManualMode(nodeID)
	}
	return e.Start(nodeID)
}

// Control actions accepted by Manager.Control.
const (
	ControlStart     = "start"
	ControlManual    = "manual"
	ControlPause     = "pause"
	ControlResume    = "resume"
	ControlStop      = "stop"
	ControlReset     = "reset"
	ControlNext      = "next"
	ControlEndManual = "end-manual"
)

// ControlActions lists every action Control accepts.
var ControlActions = []string{
	ControlStart, ControlManual, ControlPause, ControlResume,
	ControlStop, ControlReset, ControlNext, ControlEndManual,
}

// Control applies a named action to a timeline and returns its status.
// start and manual begin at nodeID, or at the entry node when it is empty.
func (m *Manager) Control(ctx context.Context, timelineID, action, nodeID string) (Status, error) {
	ctx = logging.WithTimelineID(ctx, timelineID)
	e, err := m.Get(ctx, timelineID)
	if err != nil {
		return Status{}, err
	}
	switch action {
	case ControlStart, ControlManual:
		if nodeID == "" {
			nodeID = e.EntryNode()
		}
		if action == ControlManual {
			err = e.StartManualMode(nodeID)
		} else {
			err = e.Start(nodeID)
		}
	case ControlPause:
		e.Pause()
	case ControlResume:
		e.Resume()
	case ControlStop:
		e.Stop()
	case ControlReset:
		e.Reset()
	case ControlNext:
		e.NextStep()
	case ControlEndManual:
		e.EndManualMode()
	default:
		return Status{}, schema.NewErrorf(schema.ErrCodeValidation, "unknown control action %q", action).
			WithDetails(map[string]any{"allowed": ControlActions})
	}
	if err != nil {
		return Status{}, err
	}
	m.logger.InfoContext(ctx, "timeline control", "action", action)
	return e.Status(), nil
}

// Unload stops the engine, flushes its snapshot and drops it from memory.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.Lock()
	me, ok := m.engines[id]
	delete(m.engines, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.shutdown(ctx, me)
}

// Delete unloads and removes a timeline with its history.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	me, ok := m.engines[id]
	delete(m.engines, id)
	m.mu.Unlock()
	if ok {
		me.saver.Close()
		me.engine.cancelTick()
	}
	return m.store.DeleteTimeline(ctx, id)
}

// Close flushes and releases every loaded engine.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	all := m.engines
	m.engines = make(map[string]*managed)
	m.mu.Unlock()

	var errs []error
	for id, me := range all {
		if err := m.shutdown(ctx, me); err != nil {
			errs = append(errs, fmt.Errorf("timeline %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) shutdown(ctx context.Context, me *managed) error {
	me.engine.cancelTick()
	err := me.saver.Flush(ctx)
	me.saver.Close()
	return err
}

// cancelTick stops the ticker without changing run state, so a saved running
// timeline resumes polling when driven again.
func (e *Engine) cancelTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTickLocked()
}

// sessionRecorder persists a store.Session when a manual session ends.
type sessionRecorder struct {
	store  store.Store
	logger *slog.Logger
}

func (r *sessionRecorder) AppendEvent(ctx context.Context, event *store.Event) error {
	if event.Type != schema.EventManualModeEnded {
		return nil
	}
	var stats SessionStats
	if err := json.Unmarshal(event.Payload, &stats); err != nil {
		return fmt.Errorf("decode session stats: %w", err)
	}
	sess := &store.Session{
		ID:              event.SessionID,
		TimelineID:      event.TimelineID,
		TotalActualMs:   stats.TotalActualMs,
		TotalExpectedMs: stats.TotalExpectedMs,
		ActionCount:     len(stats.Actions),
		Stats:           event.Payload,
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if stats.StartTime != nil {
		sess.StartedAt = time.UnixMilli(*stats.StartTime).UTC()
	}
	if stats.EndTime != nil {
		end := time.UnixMilli(*stats.EndTime).UTC()
		sess.EndedAt = &end
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		return err
	}
	ctx = logging.WithSessionID(logging.WithTimelineID(ctx, sess.TimelineID), sess.ID)
	r.logger.InfoContext(ctx, "session recorded",
		"actual_ms", sess.TotalActualMs, "expected_ms", sess.TotalExpectedMs)
	return nil
}
