package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/raphaelgruber/kgforge/internal/client"
	"github.com/raphaelgruber/kgforge/internal/models"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"),
	Success: lipgloss.Color("#00D787"),
	Error:   lipgloss.Color("#FF005F"),
	Hint:    lipgloss.Color("#6C6C6C"),
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// eventMsg carries one event from the progress socket.
type eventMsg client.Event

// watchDoneMsg reports that the socket closed.
type watchDoneMsg struct{ err error }

// progressModel is the bubbletea model for task progress.
type progressModel struct {
	taskID   string
	last     *client.EventData
	progress progress.Model
	theme    Theme

	done      bool
	cancelled bool
	quitting  bool
	err       error
}

func newProgressModel(taskID string) progressModel {
	return progressModel{
		taskID:   taskID,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.progress.Init()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case eventMsg:
		ev := client.Event(msg)
		if ev.Data != nil {
			m.last = ev.Data
		}
		if !ev.Terminal() {
			return m, nil
		}
		m.done = true
		m.cancelled = ev.Type == client.EventCancelled ||
			(ev.Data != nil && ev.Data.Status == models.TaskStatusCancelled)
		if ev.Data != nil && ev.Data.Status == models.TaskStatusFailed {
			m.err = errors.New(ev.Data.Message)
		}
		return m, tea.Quit

	case watchDoneMsg:
		if !m.done && msg.err != nil {
			m.err = fmt.Errorf("watch task: %w", msg.err)
		}
		m.done = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.last == nil {
		return "Waiting for task status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.last.Status))
	bar := m.progress.ViewAs(m.last.Progress / 100)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")
	return fmt.Sprintf("%s %s %5.1f%%\n%s\n%s\n", status, bar, m.last.Progress, m.last.Message, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nTask %s continues in background.\nUse 'kgforge tasks %s' to check status.\n",
			m.taskID, m.taskID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Task failed: %s\n", m.err))
	}
	if m.cancelled {
		return m.theme.hintStyle().Render("\nTask cancelled.\n")
	}

	out := m.theme.completedStyle().Render("✓ Completed") + "\n"
	if m.last != nil && m.last.Message != "" {
		out += "  " + m.last.Message + "\n"
	}
	return out
}

// RunTaskProgress shows live progress for a task until it finishes.
// Returns nil on success, cancellation or Ctrl+C (background); an error
// when the task failed or the socket broke.
func RunTaskProgress(ctx context.Context, c *client.Client, taskID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(taskID))
	go func() {
		err := c.Watch(ctx, taskID, func(ev client.Event) error {
			p.Send(eventMsg(ev))
			return nil
		})
		p.Send(watchDoneMsg{err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := finalModel.(progressModel); ok && !m.quitting {
		return m.err
	}
	return nil
}

// printTaskProgress writes one line per event, for output that is not a
// terminal.
func printTaskProgress(ctx context.Context, c *client.Client, taskID string, w io.Writer) error {
	var failed string
	err := c.Watch(ctx, taskID, func(ev client.Event) error {
		if ev.Data == nil {
			fmt.Fprintf(w, "%s %s\n", ev.TaskID, ev.Type)
			return nil
		}
		fmt.Fprintf(w, "%s %-9s %6.2f%% %s\n", ev.TaskID, ev.Data.Status, ev.Data.Progress, ev.Data.Message)
		if ev.Data.Status == models.TaskStatusFailed {
			failed = strings.TrimPrefix(ev.Data.Message, "processing failed: ")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if failed != "" {
		return fmt.Errorf("task failed: %s", failed)
	}
	return nil
}

// followTask picks the interactive or the line-based display.
func followTask(ctx context.Context, taskID string) error {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunTaskProgress(ctx, apiClient, taskID)
	}
	return printTaskProgress(ctx, apiClient, taskID, os.Stdout)
}
