package cli

import (
	"context"
	"errors"
	"fmt"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/redactomat/internal/session"
)

// snapshotMsg carries a controller state change.
type snapshotMsg session.Snapshot

// submitMsg reports the end of the upload.
type submitMsg struct {
	err error
}

// progressModel is the bubbletea model for task progress.
type progressModel struct {
	ctrl     *session.Controller
	ctx      context.Context
	snap     session.Snapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(ctx context.Context, ctrl *session.Controller) progressModel {
	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		ctrl:     ctrl,
		ctx:      ctx,
		snap:     ctrl.Snapshot(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts the upload.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.submit(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case submitMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		if m.snap.State.Terminal() {
			m.done = true
			return m, tea.Quit
		}

	case progress.FrameMsg:
		// Update progress bar animation
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

// renderContent builds the display string. The outcome is printed after
// the program exits, so finished models render nothing.
func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return ""
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.State))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to stop watching, the task keeps running")

	switch m.snap.State {
	case session.Submitting:
		name := ""
		if m.snap.File != nil {
			name = m.snap.File.Name
		}
		return fmt.Sprintf("%s Uploading %s...\n", status, name)

	case session.Polling:
		p := m.snap.Progress()
		if !p.Known() {
			return fmt.Sprintf("%s Starting process...\n%s\n", status, hint)
		}
		progressBar := m.progress.ViewAs(p.Fraction())
		counts := fmt.Sprintf("Processing page %d of %d", p.CurrentPage, p.TotalPages)
		return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
	}

	return fmt.Sprintf("%s\n", status)
}

// submit uploads the file. Runs in a separate goroutine (command) to avoid
// blocking Update().
func (m progressModel) submit() tea.Cmd {
	return func() tea.Msg {
		return submitMsg{err: m.ctrl.Submit(m.ctx)}
	}
}

// runProgressUI drives the controller through one task with the interactive
// progress view. It returns the final snapshot and, when the user stopped
// watching, the id of the task left running.
func runProgressUI(ctx context.Context, ctrl *session.Controller) (outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(ctx, ctrl))

	unsubscribe := ctrl.Subscribe(func(s session.Snapshot) {
		p.Send(snapshotMsg(s))
	})
	defer unsubscribe()

	finalModel, err := p.Run()
	if err != nil {
		ctrl.Stop()
		return outcome{}, fmt.Errorf("progress UI error: %w", err)
	}

	m, _ := finalModel.(progressModel)
	if m.quitting {
		// Cancels an upload still in flight.
		cancel()
		return outcome{detached: true, taskID: ctrl.Stop(), snap: ctrl.Snapshot()}, nil
	}
	if errors.Is(m.err, session.ErrAborted) {
		return outcome{detached: true, snap: ctrl.Snapshot()}, nil
	}
	if m.err != nil && !isUploadFailure(m.err) {
		return outcome{}, m.err
	}
	return outcome{snap: ctrl.Snapshot()}, nil
}
