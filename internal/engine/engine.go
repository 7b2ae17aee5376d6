// Package engine runs timelines: it walks a graph of actions and decision
// points, drives progress with a polling ticker and notifies listeners after
// every mutation.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/internal/logging"
	"github.com/rendis/timeline/internal/store"
	"github.com/rendis/timeline/pkg/schema"
)

// DefaultTickInterval is how often a running action recomputes its progress.
const DefaultTickInterval = 100 * time.Millisecond

// Clock abstracts wall-clock time so tests can drive the engine deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithTickInterval sets the progress polling interval.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEventAppender routes transition events to the given appender.
func WithEventAppender(a EventAppender) Option {
	return func(e *Engine) { e.appender = a }
}

// WithTimelineID stamps emitted events with the timeline id.
func WithTimelineID(id string) Option {
	return func(e *Engine) { e.timelineID = id }
}

// Engine is the timeline state machine. All state is guarded by mu; the
// ticker goroutine and callers serialize on it. Listeners and the event
// appender run after mu is released, so they may call back into the engine.
// Listeners can be invoked from the ticker goroutine.
type Engine struct {
	mu       sync.Mutex
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
	appender EventAppender

	timelineID string

	nodes map[string]graph.Node
	order []string

	currentNodeID    string
	history          []string
	running          bool
	manual           bool
	timelineComplete bool
	finished         bool
	sessionStart     *int64
	sessionEnd       *int64
	sessionID        string

	tickStop chan struct{}
	tickGen  uint64

	pending []*store.Event
	flushMu sync.Mutex

	listenersMu  sync.Mutex
	listeners    []listenerEntry
	nextListener ListenerID
}

// New creates an empty idle engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:    systemClock{},
		interval: DefaultTickInterval,
		logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		nodes:    make(map[string]graph.Node),
		history:  []string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.Correlated(e.logger)
	return e
}

// logCtx carries the timeline, node and session ids attached to engine log
// records. It reads the session id, so callers must hold mu.
func (e *Engine) logCtx(nodeID string) context.Context {
	return logging.WithIDs(context.Background(), e.timelineID, nodeID, e.sessionID)
}

// unlockedLogCtx is logCtx for code running after mu is released.
func (e *Engine) unlockedLogCtx(nodeID string) context.Context {
	return logging.WithNodeID(logging.WithTimelineID(context.Background(), e.timelineID), nodeID)
}

// TimelineID returns the id stamped on emitted events.
func (e *Engine) TimelineID() string { return e.timelineID }

// --- Listeners ---

// AddListener registers fn to be called after every mutation. Listeners run
// synchronously in registration order. A panicking listener is recovered and
// logged; the remaining listeners still run.
func (e *Engine) AddListener(fn func()) ListenerID {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.nextListener++
	e.listeners = append(e.listeners, listenerEntry{id: e.nextListener, fn: fn})
	return e.nextListener
}

// RemoveListener unregisters a listener. It reports whether the id was known.
func (e *Engine) RemoveListener(id ListenerID) bool {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = slices.Delete(e.listeners, i, i+1)
			return true
		}
	}
	return false
}

func (e *Engine) notify() {
	e.listenersMu.Lock()
	ls := slices.Clone(e.listeners)
	e.listenersMu.Unlock()
	for _, l := range ls {
		e.callListener(l)
	}
}

func (e *Engine) callListener(l listenerEntry) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(e.unlockedLogCtx(""), "timeline listener panicked",
				"listener", uint64(l.id), "panic", r)
		}
	}()
	l.fn()
}

// update runs fn under the lock, then delivers queued events and, when fn
// reports a change, notifies listeners.
func (e *Engine) update(fn func() (bool, error)) error {
	e.mu.Lock()
	changed, err := fn()
	events := e.pending
	e.pending = nil
	// Taking flushMu before releasing mu keeps event delivery in queue order.
	e.flushMu.Lock()
	e.mu.Unlock()
	e.flush(events)
	e.flushMu.Unlock()

	if changed {
		e.notify()
	}
	return err
}

func (e *Engine) flush(events []*store.Event) {
	if e.appender == nil {
		return
	}
	for _, ev := range events {
		if err := e.appender.AppendEvent(context.Background(), ev); err != nil {
			e.logger.WarnContext(e.unlockedLogCtx(ev.NodeID), "append timeline event",
				"event_type", ev.Type, "error", err)
		}
	}
}

func (e *Engine) queue(eventType, nodeID string, payload any) {
	ev := &store.Event{
		TimelineID: e.timelineID,
		NodeID:     nodeID,
		Type:       eventType,
		Timestamp:  e.clock.Now().UTC(),
	}
	if e.manual {
		ev.SessionID = e.sessionID
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	e.pending = append(e.pending, ev)
}

func actionPayload(a *graph.Action) store.NodePayload {
	p := store.NodePayload{Name: a.Name, Progress: a.Progress}
	if a.Status == schema.ActionStatusCompleted && a.ActualDuration != nil {
		p.ActualDuration = *a.ActualDuration
	}
	return p
}

// --- Ticker ---

// scheduleTickLocked arms the single progress ticker, cancelling any prior one.
func (e *Engine) scheduleTickLocked() {
	e.cancelTickLocked()
	e.tickGen++
	stop := make(chan struct{})
	e.tickStop = stop
	go e.runTicker(e.tickGen, stop)
}

func (e *Engine) cancelTickLocked() {
	if e.tickStop != nil {
		close(e.tickStop)
		e.tickStop = nil
	}
}

func (e *Engine) runTicker(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(e.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			e.tickIfCurrent(gen)
		}
	}
}

// tickIfCurrent ignores ticks from a ticker that was replaced while the tick
// was waiting for the lock.
func (e *Engine) tickIfCurrent(gen uint64) {
	_ = e.update(func() (bool, error) {
		if gen != e.tickGen || e.tickStop == nil {
			return false, nil
		}
		return e.tickLocked(), nil
	})
}

func (e *Engine) tick() {
	_ = e.update(func() (bool, error) { return e.tickLocked(), nil })
}

// TickActive reports whether a progress ticker is armed.
func (e *Engine) TickActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickStop != nil
}

func (e *Engine) tickLocked() bool {
	node, ok := e.nodes[e.currentNodeID]
	if !ok || node.Kind != graph.KindAction {
		return false
	}
	a := node.Action
	if a.Status != schema.ActionStatusRunning {
		return false
	}
	now := e.clock.Now()
	a.UpdateProgress(now, false)
	if e.manual || !e.running || a.Progress < 100 {
		return true
	}

	if !e.setAction(a, schema.ActionStatusCompleted, func() { a.Complete(now, "") }) {
		return true
	}
	e.advanceLocked(a)
	return true
}

// --- Transitions ---

func (e *Engine) setAction(a *graph.Action, to schema.ActionStatus, apply func()) bool {
	from := a.Status
	if err := checkActionTransition(a.ID, from, to); err != nil {
		e.logger.WarnContext(e.logCtx(a.ID), "action transition rejected", "error", err)
		return false
	}
	apply()
	e.queue(actionEventType(from, to), a.ID, actionPayload(a))
	return true
}

func (e *Engine) setDecision(d *graph.DecisionPoint, to schema.DecisionStatus, apply func()) bool {
	if err := checkDecisionTransition(d.ID, d.Status, to); err != nil {
		e.logger.WarnContext(e.logCtx(d.ID), "decision transition rejected", "error", err)
		return false
	}
	apply()
	e.queue(decisionEventType(to), d.ID, store.NodePayload{Name: d.Name, SelectedOption: d.Selected()})
	return true
}

// advanceLocked follows the outgoing connection of a completed action in auto mode.
func (e *Engine) advanceLocked(a *graph.Action) {
	switch len(a.Connections) {
	case 0:
		e.finishLocked()
	case 1:
		e.moveToLocked(a.Connections[0])
	default:
		e.logger.WarnContext(e.logCtx(a.ID), "action has multiple connections; model the branch with a decision point",
			"connections", len(a.Connections))
		e.haltLocked(a.ID, "multiple outgoing connections")
	}
}

// moveToLocked places the cursor on id, records it in the history and executes it.
func (e *Engine) moveToLocked(id string) {
	node, ok := e.nodes[id]
	if !ok || !node.Executable() {
		e.logger.WarnContext(e.logCtx(id), "traversal target is missing or not executable")
		e.haltLocked(e.currentNodeID, "target "+id+" is missing or not executable")
		return
	}
	e.currentNodeID = id
	e.history = append(e.history, id)
	e.executeCurrentLocked()
}

func (e *Engine) executeCurrentLocked() {
	node := e.nodes[e.currentNodeID]
	now := e.clock.Now()
	switch node.Kind {
	case graph.KindAction:
		a := node.Action
		if e.setAction(a, schema.ActionStatusRunning, func() { a.Start(now) }) {
			e.scheduleTickLocked()
		}
	case graph.KindDecision:
		e.cancelTickLocked()
		d := node.Decision
		e.setDecision(d, schema.DecisionStatusActive, d.Activate)
	}
}

// finishLocked ends an auto-mode run that reached an action without connections.
func (e *Engine) finishLocked() {
	last := e.currentNodeID
	e.stopLocked()
	e.finished = true
	e.queue(schema.EventTimelineCompleted, last, nil)
}

func (e *Engine) haltLocked(nodeID, reason string) {
	e.stopLocked()
	e.queue(schema.EventTraversalHalted, nodeID, store.NodePayload{Reason: reason})
}

func (e *Engine) stopLocked() {
	e.cancelTickLocked()
	e.currentNodeID = ""
	e.running = false
}

func (e *Engine) resolveStartLocked(nodeID string) (graph.Node, error) {
	if nodeID == "" {
		return graph.Node{}, schema.NewError(schema.ErrCodeValidation, "start node id is required")
	}
	node, ok := e.nodes[nodeID]
	if !ok {
		return graph.Node{}, schema.NewErrorf(schema.ErrCodeNotFound, "node %q not found", nodeID).WithNode(nodeID)
	}
	if !node.Executable() {
		return graph.Node{}, schema.NewErrorf(schema.ErrCodeValidation,
			"node %q is a %s and cannot be executed", nodeID, node.Kind).WithNode(nodeID)
	}
	return node, nil
}

// Start begins auto-mode execution at nodeID. It fails when the id is empty,
// unknown or names a note.
func (e *Engine) Start(nodeID string) error {
	return e.update(func() (bool, error) {
		if _, err := e.resolveStartLocked(nodeID); err != nil {
			return false, err
		}
		e.manual = false
		e.timelineComplete = false
		e.finished = false
		e.running = true
		e.currentNodeID = nodeID
		e.history = []string{nodeID}
		e.queue(schema.EventTimelineStarted, nodeID, nil)
		e.executeCurrentLocked()
		return true, nil
	})
}

// StartManualMode begins a manual session at nodeID. Actions track progress
// but only complete through NextStep or EndManualMode.
func (e *Engine) StartManualMode(nodeID string) error {
	return e.update(func() (bool, error) {
		if _, err := e.resolveStartLocked(nodeID); err != nil {
			return false, err
		}
		start := e.clock.Now().UnixMilli()
		e.manual = true
		e.timelineComplete = false
		e.finished = false
		e.running = true
		e.sessionStart = &start
		e.sessionEnd = nil
		e.sessionID = uuid.NewString()
		e.currentNodeID = nodeID
		e.history = []string{nodeID}
		e.queue(schema.EventManualModeStarted, nodeID, nil)
		e.executeCurrentLocked()
		return true, nil
	})
}

// Pause freezes the run. A running current action keeps its elapsed time.
func (e *Engine) Pause() {
	_ = e.update(func() (bool, error) {
		if !e.running {
			e.logger.WarnContext(e.logCtx(e.currentNodeID), "pause ignored: timeline is not running")
			return false, nil
		}
		e.running = false
		e.cancelTickLocked()
		if node, ok := e.nodes[e.currentNodeID]; ok && node.Kind == graph.KindAction &&
			node.Action.Status == schema.ActionStatusRunning {
			a := node.Action
			now := e.clock.Now()
			e.setAction(a, schema.ActionStatusPaused, func() { a.Pause(now) })
		}
		e.queue(schema.EventTimelinePaused, e.currentNodeID, nil)
		return true, nil
	})
}

// Resume continues a paused run from where it stopped.
func (e *Engine) Resume() {
	_ = e.update(func() (bool, error) {
		if e.running && e.tickStop == nil {
			// A restored run keeps its running flag but has no ticker yet.
			if node, ok := e.nodes[e.currentNodeID]; ok && node.Kind == graph.KindAction &&
				node.Action.Status == schema.ActionStatusRunning {
				e.scheduleTickLocked()
				e.logger.InfoContext(e.logCtx(e.currentNodeID), "restored run resumed")
				return true, nil
			}
		}
		if e.running || e.currentNodeID == "" {
			e.logger.WarnContext(e.logCtx(e.currentNodeID), "resume ignored: nothing is paused")
			return false, nil
		}
		e.running = true
		e.queue(schema.EventTimelineResumed, e.currentNodeID, nil)
		node, ok := e.nodes[e.currentNodeID]
		if !ok {
			return true, nil
		}
		switch node.Kind {
		case graph.KindAction:
			a := node.Action
			switch a.Status {
			case schema.ActionStatusPaused:
				now := e.clock.Now()
				if e.setAction(a, schema.ActionStatusRunning, func() { a.Resume(now) }) {
					e.scheduleTickLocked()
				}
			case schema.ActionStatusRunning:
				e.scheduleTickLocked()
			}
		case graph.KindDecision:
			// A decision resolved while paused is followed once the run continues.
			d := node.Decision
			if !e.manual && d.Status == schema.DecisionStatusCompleted && d.Selected() != "" {
				e.moveToLocked(d.Selected())
			}
		}
		return true, nil
	})
}

// Stop cancels the ticker, clears the cursor and leaves manual mode. The
// engine is idle afterwards; a manual session stopped this way records no stats.
func (e *Engine) Stop() {
	_ = e.update(func() (bool, error) {
		last := e.currentNodeID
		e.stopLocked()
		e.manual = false
		e.timelineComplete = false
		e.finished = false
		e.queue(schema.EventTimelineStopped, last, nil)
		return true, nil
	})
}

// Reset stops the engine and returns every node to its pending defaults,
// keeping ids, names, connections and options.
func (e *Engine) Reset() {
	_ = e.update(func() (bool, error) {
		e.stopLocked()
		e.history = []string{}
		e.sessionStart = nil
		e.sessionEnd = nil
		e.sessionID = ""
		e.manual = false
		e.timelineComplete = false
		e.finished = false
		for _, id := range e.order {
			node := e.nodes[id]
			switch node.Kind {
			case graph.KindAction:
				node.Action.Reset()
			case graph.KindDecision:
				node.Decision.Reset()
			}
		}
		e.queue(schema.EventTimelineReset, "", nil)
		return true, nil
	})
}

// MakeDecision resolves an active decision with one of its option targets.
// In auto mode traversal continues at actionID; in manual mode the choice is
// recorded and NextStep advances. A decision that is not active is left
// untouched with a warning.
func (e *Engine) MakeDecision(decisionID, actionID string) error {
	return e.update(func() (bool, error) {
		node, ok := e.nodes[decisionID]
		if !ok || node.Kind != graph.KindDecision {
			return false, schema.NewErrorf(schema.ErrCodeNotFound, "decision point %q not found", decisionID).WithNode(decisionID)
		}
		d := node.Decision
		if d.Status != schema.DecisionStatusActive {
			e.logger.WarnContext(e.logCtx(decisionID), "decision ignored: decision point is not active",
				"status", string(d.Status))
			return false, nil
		}
		if !d.HasOption(actionID) {
			return false, schema.NewErrorf(schema.ErrCodeValidation,
				"%q is not an option of decision point %q", actionID, decisionID).WithNode(decisionID)
		}
		if !e.setDecision(d, schema.DecisionStatusCompleted, func() { d.SelectOption(actionID) }) {
			return false, nil
		}
		if !e.manual && e.running && e.currentNodeID == decisionID {
			e.moveToLocked(actionID)
		}
		return true, nil
	})
}

// NextStep advances a manual session. The current action is completed and
// the cursor moves along its single connection; on a decision the recorded
// selection is followed. The last action keeps running and the session is
// flagged complete until EndManualMode.
func (e *Engine) NextStep() {
	_ = e.update(func() (bool, error) {
		if !e.manual {
			e.logger.WarnContext(e.logCtx(e.currentNodeID), "next step ignored: not in manual mode")
			return false, nil
		}
		node, ok := e.nodes[e.currentNodeID]
		if !ok {
			e.logger.WarnContext(e.logCtx(""), "next step ignored: no current node")
			return false, nil
		}

		switch node.Kind {
		case graph.KindDecision:
			selected := node.Decision.Selected()
			if selected == "" {
				e.logger.WarnContext(e.logCtx(node.ID()), "next step ignored: decision has no selected option")
				return false, nil
			}
			e.moveToLocked(selected)
			return true, nil

		case graph.KindAction:
			a := node.Action
			if e.timelineComplete {
				e.logger.WarnContext(e.logCtx(a.ID), "next step ignored: timeline already complete")
				return false, nil
			}
			switch len(a.Connections) {
			case 0:
				e.timelineComplete = true
				e.queue(schema.EventManualTimelineComplete, a.ID, nil)
				return true, nil
			case 1:
				now := e.clock.Now()
				if a.Status == schema.ActionStatusRunning || a.Status == schema.ActionStatusPaused {
					e.setAction(a, schema.ActionStatusCompleted, func() { a.Complete(now, e.sessionID) })
				}
				if !e.running {
					e.running = true
				}
				e.moveToLocked(a.Connections[0])
				return true, nil
			default:
				e.logger.WarnContext(e.logCtx(a.ID), "next step ignored: action has multiple connections",
					"connections", len(a.Connections))
				return false, nil
			}
		}
		return false, nil
	})
}

// EndManualMode closes the session: the ticker stops, a still-running action
// is force-completed and the session end is stamped.
func (e *Engine) EndManualMode() {
	_ = e.update(func() (bool, error) {
		if !e.manual {
			e.logger.WarnContext(e.logCtx(""), "end manual mode ignored: not in manual mode")
			return false, nil
		}
		e.cancelTickLocked()
		now := e.clock.Now()
		if node, ok := e.nodes[e.currentNodeID]; ok && node.Kind == graph.KindAction {
			a := node.Action
			if a.Status == schema.ActionStatusRunning || a.Status == schema.ActionStatusPaused {
				e.setAction(a, schema.ActionStatusCompleted, func() { a.Complete(now, e.sessionID) })
			}
		}
		end := now.UnixMilli()
		e.sessionEnd = &end
		stats := e.sessionStatsLocked()

		// The event is queued while still in manual mode so it carries the session id.
		e.queue(schema.EventManualModeEnded, e.currentNodeID, stats)
		e.manual = false
		e.timelineComplete = false
		e.currentNodeID = ""
		e.running = false
		return true, nil
	})
}

// --- Queries ---

// State reports the effective machine state.
func (e *Engine) State() schema.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() schema.EngineState {
	if e.manual && e.timelineComplete {
		return schema.EngineStateManualComplete
	}
	if e.finished {
		return schema.EngineStateComplete
	}
	if e.currentNodeID == "" {
		return schema.EngineStateIdle
	}
	if !e.running {
		return schema.EngineStatePaused
	}
	node := e.nodes[e.currentNodeID]
	switch node.Kind {
	case graph.KindDecision:
		return schema.EngineStateExecutingDecision
	case graph.KindAction:
		if e.manual {
			return schema.EngineStateManualExecutingAction
		}
		return schema.EngineStateExecutingAction
	}
	return schema.EngineStateIdle
}

// Status is a point-in-time summary of the engine flags.
type Status struct {
	TimelineID       string             `json:"timelineId,omitempty"`
	State            schema.EngineState `json:"state"`
	CurrentNodeID    string             `json:"currentNodeId,omitempty"`
	IsRunning        bool               `json:"isRunning"`
	IsManualMode     bool               `json:"isManualMode"`
	TimelineComplete bool               `json:"timelineComplete"`
	SessionID        string             `json:"sessionId,omitempty"`
	SessionStartTime *int64             `json:"sessionStartTime,omitempty"`
	SessionEndTime   *int64             `json:"sessionEndTime,omitempty"`
	ExecutionHistory []string           `json:"executionHistory"`
	Progress         float64            `json:"progress"`
	RemainingMs      int64              `json:"remainingMs"`
}

// Status returns a summary of the current run.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		TimelineID:       e.timelineID,
		State:            e.stateLocked(),
		CurrentNodeID:    e.currentNodeID,
		IsRunning:        e.running,
		IsManualMode:     e.manual,
		TimelineComplete: e.timelineComplete,
		SessionID:        e.sessionID,
		SessionStartTime: cloneMillis(e.sessionStart),
		SessionEndTime:   cloneMillis(e.sessionEnd),
		ExecutionHistory: slices.Clone(e.history),
	}
	if node, ok := e.nodes[e.currentNodeID]; ok && node.Kind == graph.KindAction {
		st.Progress = node.Action.Progress
		st.RemainingMs = node.Action.Remaining(e.clock.Now())
	}
	return st
}

// CurrentNodeID returns the cursor, or "" when idle.
func (e *Engine) CurrentNodeID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentNodeID
}

// ExecutionHistory returns the node ids visited in the current run.
func (e *Engine) ExecutionHistory() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.history)
}

// IsRunning reports the running flag.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// IsManualMode reports whether a manual session is open.
func (e *Engine) IsManualMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manual
}

// TimelineComplete reports whether a manual session reached its last node.
func (e *Engine) TimelineComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timelineComplete
}

// GetNode returns a copy of the node with the given id.
func (e *Engine) GetNode(id string) (graph.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, ok := e.nodes[id]
	if !ok {
		return graph.Node{}, false
	}
	return node.Clone(), true
}

// GetAllNodes returns copies of every node in insertion order.
func (e *Engine) GetAllNodes() []graph.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]graph.Node, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.nodes[id].Clone())
	}
	return out
}

// EntryNode is where a run starts when no node is named: the first root, or
// the first executable node when every node sits on a cycle. It is "" for a
// graph without actions or decisions.
func (e *Engine) EntryNode() string {
	topo := graph.Analyze(e.GetAllNodes())
	if len(topo.Roots) > 0 {
		return topo.Roots[0]
	}
	if len(topo.Order) > 0 {
		return topo.Order[0]
	}
	return ""
}

func cloneMillis(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
