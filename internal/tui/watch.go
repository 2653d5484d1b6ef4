// Package tui provides the terminal interface for watching a generation
// session using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/poller"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// SessionFetch loads the final session snapshot once polling ends.
type SessionFetch func(id string) (*domain.GenerationSession, error)

// Message types
type updateMsg poller.Update
type streamClosedMsg struct{}
type sessionMsg struct {
	session *domain.GenerationSession
	err     error
}

// WatchModel renders a session's progress until it reaches a terminal
// status.
type WatchModel struct {
	sessionID string
	updates   <-chan poller.Update
	cancel    context.CancelFunc
	fetch     SessionFetch

	spinner  spinner.Model
	last     poller.Update
	session  *domain.GenerationSession
	err      error
	quitting bool
}

// NewWatch starts the poller and builds the model around its update stream.
func NewWatch(p *poller.Poller, sessionID string, fetch SessionFetch) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctx, cancel := context.WithCancel(context.Background())
	return WatchModel{
		sessionID: sessionID,
		updates:   p.Watch(ctx, sessionID),
		cancel:    cancel,
		fetch:     fetch,
		spinner:   s,
		last:      poller.Update{SessionID: sessionID, Message: poller.MsgWorking},
	}
}

// Session returns the final snapshot, if polling reached one.
func (m WatchModel) Session() *domain.GenerationSession {
	return m.session
}

// Err returns the error that stopped the watch, if any.
func (m WatchModel) Err() error {
	return m.err
}

func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.nextUpdate())
}

func (m WatchModel) nextUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return streamClosedMsg{}
		}
		return updateMsg(u)
	}
}

func (m WatchModel) fetchSession() tea.Cmd {
	return func() tea.Msg {
		sess, err := m.fetch(m.sessionID)
		return sessionMsg{session: sess, err: err}
	}
}

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			m.quitting = true
			return m, tea.Quit
		}

	case updateMsg:
		m.last = poller.Update(msg)
		if m.last.Err != nil {
			m.err = m.last.Err
			m.cancel()
			return m, tea.Quit
		}
		if m.last.Status.Terminal() {
			return m, m.fetchSession()
		}
		return m, m.nextUpdate()

	case sessionMsg:
		m.session = msg.session
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

	case streamClosedMsg:
		m.cancel()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("chapterd watch"))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("  ✗ " + m.err.Error()))

	case m.session != nil && m.session.Status == domain.StatusDone:
		b.WriteString(doneStyle.Render("  ✓ Chapters ready"))
		b.WriteString("\n\n")
		b.WriteString(boxStyle.Render(m.session.Result))

	case m.session != nil && m.session.Status == domain.StatusError:
		b.WriteString(errorStyle.Render("  ✗ " + m.session.ErrorMessage))

	default:
		line := fmt.Sprintf("%s %s", m.spinner.View(), m.last.Message)
		if m.last.TimedOut {
			line = warnStyle.Render(line)
		}
		b.WriteString("  " + line)
		b.WriteString("\n")
		b.WriteString(infoStyle.Render(fmt.Sprintf(
			"  session %s · %s elapsed", m.sessionID, m.last.Elapsed.Round(time.Second))))
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  q quit"))
	b.WriteString("\n")
	return b.String()
}

var _ tea.Model = WatchModel{}
