// Package tui implements the Bubble Tea live view behind `caps-indicator watch`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/caps-indicator/internal/control"
	"github.com/Dicklesworthstone/caps-indicator/internal/daemon"
	"github.com/Dicklesworthstone/caps-indicator/internal/tui/theme"
)

const probeTimeout = time.Second

// Indicator is the live Caps-Lock source, normally an x11.Monitor.
type Indicator interface {
	Changes() <-chan struct{}
	CapsLock() (bool, error)
}

// Options configures the watch view.
type Options struct {
	Indicator Indicator
	// Probe reports the daemon state.
	Probe func(ctx context.Context) daemon.StatusInfo
	// Send delivers a control command to the daemon.
	Send func(ctx context.Context, cmd control.Command) error
	// Events, when set, triggers a re-probe on pid file or socket changes.
	Events <-chan daemon.WatchEvent
	Theme  string
}

type capsMsg struct {
	on  bool
	err error
}

type changedMsg struct{}

type indicatorClosedMsg struct{}

type statusMsg daemon.StatusInfo

type watchMsg daemon.WatchEvent

type sentMsg struct {
	cmd control.Command
	err error
}

// Model represents the main TUI model.
type Model struct {
	options Options
	theme   *theme.Theme

	caps      bool
	capsKnown bool
	capsErr   error
	toggles   int
	status    daemon.StatusInfo
	notice    string

	ready  bool
	width  int
	height int
}

// NewWithOptions creates a model for the given sources.
func NewWithOptions(opts Options) Model {
	theme.SetTheme(theme.FlavorName(opts.Theme))
	return Model{
		options: opts,
		theme:   theme.Current,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.readCaps(),
		m.waitChange(),
		m.probe(),
		m.waitWatch(),
	)
}

func (m Model) readCaps() tea.Cmd {
	if m.options.Indicator == nil {
		return nil
	}
	ind := m.options.Indicator
	return func() tea.Msg {
		on, err := ind.CapsLock()
		return capsMsg{on: on, err: err}
	}
}

func (m Model) waitChange() tea.Cmd {
	if m.options.Indicator == nil {
		return nil
	}
	ch := m.options.Indicator.Changes()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return indicatorClosedMsg{}
		}
		return changedMsg{}
	}
}

func (m Model) probe() tea.Cmd {
	if m.options.Probe == nil {
		return nil
	}
	probe := m.options.Probe
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		return statusMsg(probe(ctx))
	}
}

func (m Model) waitWatch() tea.Cmd {
	if m.options.Events == nil {
		return nil
	}
	ch := m.options.Events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return watchMsg(ev)
	}
}

func (m Model) send(cmd control.Command) tea.Cmd {
	if m.options.Send == nil {
		return nil
	}
	send := m.options.Send
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		return sentMsg{cmd: cmd, err: send(ctx, cmd)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "a":
			return m, m.send(control.Activate)
		case "d":
			return m, m.send(control.Deactivate)
		case "r":
			return m, tea.Batch(m.readCaps(), m.probe())
		}

	case capsMsg:
		if msg.err == nil && m.capsKnown && msg.on != m.caps {
			m.toggles++
		}
		m.caps, m.capsErr = msg.on, msg.err
		m.capsKnown = msg.err == nil

	case changedMsg:
		return m, tea.Batch(m.readCaps(), m.waitChange())

	case indicatorClosedMsg:
		m.capsErr = errors.New("display connection closed")
		m.capsKnown = false

	case statusMsg:
		m.status = daemon.StatusInfo(msg)

	case watchMsg:
		return m, tea.Batch(m.probe(), m.waitWatch())

	case sentMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.cmd, msg.err)
		} else {
			m.notice = fmt.Sprintf("sent %s", msg.cmd)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	t := m.theme
	title := lipgloss.NewStyle().Foreground(t.Mauve).Bold(true)
	label := lipgloss.NewStyle().Foreground(t.Blue).Width(10)
	dim := lipgloss.NewStyle().Foreground(t.Subtext)
	badge := func(text string, color lipgloss.Color) string {
		return lipgloss.NewStyle().
			Foreground(t.Surface).
			Background(color).
			Bold(true).
			Padding(0, 1).
			Render(text)
	}

	var caps string
	switch {
	case m.capsErr != nil:
		caps = badge("ERROR", t.Red) + " " + dim.Render(m.capsErr.Error())
	case !m.capsKnown:
		caps = dim.Render("unknown")
	case m.caps:
		caps = badge("ON", t.IndicatorColor(true))
	default:
		caps = badge("OFF", t.IndicatorColor(false))
	}

	state := m.status.State
	if state == "" {
		state = "unknown"
	}
	daemonLine := badge(strings.ToUpper(state), t.DaemonColor(state))
	if m.status.PID > 0 {
		daemonLine += " " + dim.Render(fmt.Sprintf("pid %d", m.status.PID))
	}

	rows := []string{
		title.Render("caps-indicator"),
		"",
		label.Render("caps lock") + caps,
		label.Render("toggles") + fmt.Sprint(m.toggles),
		label.Render("daemon") + daemonLine,
	}
	if m.status.SocketPath != "" {
		rows = append(rows, label.Render("socket")+dim.Render(m.status.SocketPath))
	}
	if m.notice != "" {
		rows = append(rows, "", m.notice)
	}
	rows = append(rows, "", dim.Render("a activate · d deactivate · r refresh · q quit"))

	return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// Run starts the TUI.
func Run(opts Options) error {
	p := tea.NewProgram(NewWithOptions(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
