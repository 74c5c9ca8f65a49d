// Package tui renders a running generation in the terminal: a spinner and
// progress bar while the job runs, then the result image URL or the error.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mando222/ai-image-gen/internal/cli"
	"github.com/mando222/ai-image-gen/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	boxStyle   = lipgloss.NewStyle().Padding(1, 2)
)

// Canceller stops the running generation. *session.Controller satisfies it.
type Canceller interface {
	Cancel()
}

// snapshotMsg carries a controller state change into the program.
type snapshotMsg session.Snapshot

// closedMsg means the snapshot channel was closed.
type closedMsg struct{}

// Model is the bubbletea model for one generation.
type Model struct {
	ctrl     Canceller
	updates  <-chan session.Snapshot
	snap     session.Snapshot
	spinner  spinner.Model
	progress progress.Model
	started  time.Time
	prompt   string
	done     bool
}

// New creates a model that follows updates and cancels through ctrl.
func New(ctrl Canceller, updates <-chan session.Snapshot, initial session.Snapshot, prompt string) Model {
	return Model{
		ctrl:     ctrl,
		updates:  updates,
		snap:     initial,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress: progress.New(progress.WithDefaultGradient()),
		started:  time.Now(),
		prompt:   prompt,
	}
}

func (m Model) Init() tea.Cmd {
	if m.snap.State != session.StateGenerating {
		return tea.Quit
	}
	return tea.Batch(m.spinner.Tick, m.progress.SetPercent(m.snap.Progress/100), waitForSnapshot(m.updates))
}

func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-20, 10), 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.done {
				m.ctrl.Cancel()
			}
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		cmd := m.progress.SetPercent(m.snap.Progress / 100)
		if m.snap.State != session.StateGenerating {
			m.done = true
			return m, tea.Sequence(cmd, tea.Quit)
		}
		return m, tea.Batch(cmd, waitForSnapshot(m.updates))

	case closedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("imagegen"))
	s.WriteString(infoStyle.Render(fmt.Sprintf("  %s mode", m.snap.Mode)))
	s.WriteString("\n")
	s.WriteString(infoStyle.Render(truncate(m.prompt, 60)))
	s.WriteString("\n\n")

	switch m.snap.State {
	case session.StateCompleted:
		s.WriteString(okStyle.Render("Done: "))
		s.WriteString(m.snap.ImageURL)
	case session.StateFailed:
		s.WriteString(errStyle.Render("Error: "))
		s.WriteString(m.snap.Error)
	case session.StateIdle:
		s.WriteString(infoStyle.Render("Cancelled."))
	default:
		s.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
			m.spinner.View(), " ", m.progress.View()))
		status := "\n" + cli.FormatDurationShort(time.Since(m.started))
		if m.snap.JobID != "" {
			status += "  job " + m.snap.JobID
		}
		if m.snap.PollErrors > 0 {
			status += fmt.Sprintf("  (%d poll errors)", m.snap.PollErrors)
		}
		s.WriteString(infoStyle.Render(status))
		s.WriteString(infoStyle.Render("\n\nq to cancel"))
	}
	s.WriteString("\n")
	return boxStyle.Render(s.String())
}

// Run subscribes to ctrl and renders until the generation ends or the user
// cancels. It returns the final controller state.
func Run(ctx context.Context, ctrl *session.Controller, prompt string) (session.Snapshot, error) {
	updates, stop := ctrl.Subscribe()
	defer stop()

	p := tea.NewProgram(New(ctrl, updates, ctrl.Snapshot(), prompt), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return ctrl.Snapshot(), fmt.Errorf("terminal UI: %w", err)
	}
	return ctrl.Wait(ctx)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
