// Package tui is an interactive terminal runner for a single timeline.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/timeline/internal/engine"
	"github.com/rendis/timeline/internal/graph"
	"github.com/rendis/timeline/pkg/schema"
)

const (
	defaultRefresh = 250 * time.Millisecond
	barWidth       = 40
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	nodeStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

type changedMsg struct{}

type tickMsg time.Time

// Model drives one engine from the keyboard and redraws on every engine
// change and on a refresh tick while an action runs.
type Model struct {
	engine  *engine.Engine
	title   string
	keys    KeyMap
	help    help.Model
	refresh time.Duration

	status  engine.Status
	current graph.Node
	hasNode bool
	notice  string
	width   int

	listener  engine.ListenerID
	changes   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewModel subscribes to e. Call Close when the program exits.
func NewModel(e *engine.Engine, title string) *Model {
	if title == "" {
		title = "Timeline"
	}
	m := &Model{
		engine:  e,
		title:   title,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		refresh: defaultRefresh,
		width:   80,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	m.listener = e.AddListener(func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	m.sync()
	return m
}

// Close unsubscribes from the engine.
func (m *Model) Close() {
	m.closeOnce.Do(func() {
		m.engine.RemoveListener(m.listener)
		close(m.done)
	})
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), m.tick())
}

func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return changedMsg{}
		case <-m.done:
			return nil
		}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case changedMsg:
		m.sync()
		return m, m.waitForChange()
	case tickMsg:
		m.sync()
		return m, m.tick()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Pause):
		switch {
		case m.status.IsRunning:
			m.engine.Pause()
		case m.status.CurrentNodeID != "":
			m.engine.Resume()
		default:
			m.notice = "nothing to pause"
		}
	case key.Matches(msg, m.keys.Next):
		if !m.status.IsManualMode {
			m.notice = "next step only applies in manual mode"
			break
		}
		m.engine.NextStep()
	case key.Matches(msg, m.keys.EndManual):
		if !m.status.IsManualMode {
			m.notice = "no manual session to end"
			break
		}
		m.engine.EndManualMode()
	case key.Matches(msg, m.keys.Stop):
		m.engine.Stop()
	case key.Matches(msg, m.keys.Reset):
		m.engine.Reset()
	case key.Matches(msg, m.keys.Option):
		m.choose(int(msg.String()[0] - '1'))
	}
	m.sync()
	return m, nil
}

// choose resolves the current decision with its i-th option.
func (m *Model) choose(i int) {
	if !m.hasNode || m.current.Kind != graph.KindDecision {
		m.notice = "no decision to make"
		return
	}
	d := m.current.Decision
	if i < 0 || i >= len(d.Options) {
		m.notice = fmt.Sprintf("option %d does not exist", i+1)
		return
	}
	if err := m.engine.MakeDecision(d.ID, d.Options[i].ActionID); err != nil {
		m.notice = err.Error()
	}
}

func (m *Model) sync() {
	m.status = m.engine.Status()
	m.current, m.hasNode = m.engine.GetNode(m.status.CurrentNodeID)
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(stateLabel(m.status))
	b.WriteString("\n\n")

	if m.hasNode {
		b.WriteString(nodeStyle.Render(m.nodeView()))
		b.WriteString("\n")
	} else {
		b.WriteString(idleStyle.Render(idleText(m.status.State)))
		b.WriteString("\n")
	}

	if len(m.status.ExecutionHistory) > 0 {
		b.WriteString(detailStyle.Render("History: " + strings.Join(m.status.ExecutionHistory, " → ")))
		b.WriteString("\n")
	}
	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) nodeView() string {
	switch m.current.Kind {
	case graph.KindAction:
		a := m.current.Action
		lines := []string{
			lipgloss.NewStyle().Bold(true).Render(labelOf(a.Name, a.ID)),
			progressBar(m.status.Progress),
			detailStyle.Render(fmt.Sprintf("%s remaining of %s",
				graph.FormatDuration(m.status.RemainingMs), graph.FormatDuration(a.Duration))),
		}
		if a.Description != "" {
			lines = append(lines, detailStyle.Render(a.Description))
		}
		return strings.Join(lines, "\n")
	case graph.KindDecision:
		d := m.current.Decision
		lines := []string{lipgloss.NewStyle().Bold(true).Render(labelOf(d.Name, d.ID))}
		for i, opt := range d.Options {
			mark := " "
			if d.Selected() == opt.ActionID {
				mark = "*"
			}
			lines = append(lines, fmt.Sprintf("%s[%d] %s → %s", mark, i+1, labelOf(opt.Label, opt.ActionID), opt.ActionID))
		}
		return strings.Join(lines, "\n")
	}
	return m.current.ID()
}

func labelOf(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

// progressBar renders percent (0-100) as a fixed-width bar.
func progressBar(percent float64) string {
	percent = min(max(percent, 0), 100)
	filled := int(percent / 100 * barWidth)
	return barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled)) +
		fmt.Sprintf(" %3.0f%%", percent)
}

func stateLabel(st engine.Status) string {
	label := strings.ToUpper(strings.ReplaceAll(string(st.State), "_", " "))
	switch st.State {
	case schema.EngineStatePaused:
		return pausedStyle.Render(label)
	case schema.EngineStateIdle, schema.EngineStateComplete:
		return idleStyle.Render(label)
	default:
		return runningStyle.Render(label)
	}
}

func idleText(state schema.EngineState) string {
	if state == schema.EngineStateComplete {
		return "Timeline complete."
	}
	return "Not running."
}

// Run starts the runner on the terminal and blocks until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, e *engine.Engine, title string, opts ...tea.ProgramOption) error {
	m := NewModel(e, title)
	defer m.Close()
	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)...)
	_, err := p.Run()
	return err
}
