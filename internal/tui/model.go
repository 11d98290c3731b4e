// Package tui renders a live sync session: per-collection position, a
// bounded progress bar, and the terminal outcome.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	syncpkg "github.com/fieldsync/fieldsync/internal/sync"
)

type snapshotMsg syncpkg.Snapshot

type doneMsg struct {
	err error
}

// Model is the sync monitor TUI model.
type Model struct {
	engine  *syncpkg.Engine
	snaps   <-chan syncpkg.Snapshot
	errCh   <-chan error
	spinner spinner.Model
	bar     progress.Model
	snap    syncpkg.Snapshot
	width   int
	done    bool
	err     error
	stopped bool
}

func newModel(engine *syncpkg.Engine, snaps <-chan syncpkg.Snapshot, errCh <-chan error) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleTitle

	bar := progress.New(progress.WithDefaultGradient())

	return Model{
		engine:  engine,
		snaps:   snaps,
		errCh:   errCh,
		spinner: sp,
		bar:     bar,
		width:   60,
	}
}

// Run drives one sync session under the TUI and returns the session's
// terminal error.
func Run(ctx context.Context, engine *syncpkg.Engine) error {
	snaps := make(chan syncpkg.Snapshot, 64)
	engine.Subscribe(func(s syncpkg.Snapshot) {
		// Drop snapshots when the UI lags; the next one supersedes.
		select {
		case snaps <- s:
		default:
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Sync(ctx)
	}()

	p := tea.NewProgram(newModel(engine, snaps, errCh))
	final, err := p.Run()
	if err != nil {
		// The terminal broke, not the sync; wait for the session.
		return <-errCh
	}
	return final.(Model).err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.snaps), waitForDone(m.errCh))
}

func waitForSnapshot(ch <-chan syncpkg.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-ch)
	}
}

func waitForDone(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-ch}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Graceful: the walk exits at the next collection boundary.
			m.stopped = true
			m.engine.Stop()
			return m, nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 72 {
			m.bar.Width = 72
		}
		return m, nil

	case snapshotMsg:
		m.snap = syncpkg.Snapshot(msg)
		return m, waitForSnapshot(m.snaps)

	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("fieldsync"))
	b.WriteString("\n")

	switch m.snap.State {
	case syncpkg.StateInitializing:
		b.WriteString(m.spinner.View() + " resolving identity...\n")
	case syncpkg.StateSyncing:
		fmt.Fprintf(&b, "%s %s %s\n",
			m.spinner.View(),
			styleCollection.Render(m.snap.Collection),
			styleDim.Render(fmt.Sprintf("(%d/%d)", m.snap.CollectionIndex+1, m.snap.CollectionCount)))
		fmt.Fprintf(&b, "%s\n", styleDim.Render(fmt.Sprintf("%d records applied", m.snap.RecordsApplied)))
	case syncpkg.StateCompleted:
		fmt.Fprintf(&b, "%s %s\n",
			styleSuccess.Render("sync complete"),
			styleDim.Render(fmt.Sprintf("%d records", m.snap.RecordsApplied)))
	case syncpkg.StateStopped:
		b.WriteString(styleStopped.Render("sync stopped") + "\n")
	case syncpkg.StateFailed:
		b.WriteString(styleError.Render("sync failed") + "\n")
		if m.snap.Err != nil {
			b.WriteString(styleDim.Render(m.snap.Err.Error()) + "\n")
		}
	default:
		b.WriteString(m.spinner.View() + " starting...\n")
	}

	b.WriteString("\n" + m.bar.ViewAs(m.snap.Fraction) + "\n")

	footer := "q: stop at next collection"
	if m.stopped && !m.done {
		footer = "stopping at collection boundary..."
	}
	b.WriteString("\n" + styleDim.Render(footer))

	return styleFrame.Render(b.String())
}
