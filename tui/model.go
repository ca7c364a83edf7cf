// Package tui is the terminal dashboard: recent runs, their per-stage
// verdicts, and the tail of the active stage log
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/runstore"
)

// RunSource supplies the data the dashboard displays. Implemented by
// the run store.
type RunSource interface {
	ListRuns(opts runstore.ListOptions) ([]*runstore.Run, error)
	StageResults(runID string) ([]domain.StageResult, error)
}

// Model is the TUI application model
type Model struct {
	source RunSource

	// Data
	runs   []*runstore.Run
	stages []domain.StageResult

	// UI state
	width       int
	height      int
	selectedRow int
	showStages  bool

	// Refresh
	lastRefresh time.Time
	loadErr     error
}

// NewModel creates a new TUI model
func NewModel(source RunSource) Model {
	return Model{source: source}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadRuns(),
		tickCmd(),
	)
}

// TickMsg triggers a refresh
type TickMsg time.Time

// runsLoadedMsg carries a fresh run list
type runsLoadedMsg struct {
	runs []*runstore.Run
	err  error
}

// stagesLoadedMsg carries the selected run's stage history
type stagesLoadedMsg struct {
	stages []domain.StageResult
	err    error
}

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) loadRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.source.ListRuns(runstore.ListOptions{Limit: 50})
		return runsLoadedMsg{runs: runs, err: err}
	}
}

func (m Model) loadStages() tea.Cmd {
	if m.selectedRow >= len(m.runs) {
		return nil
	}
	runID := m.runs[m.selectedRow].ID
	return func() tea.Msg {
		stages, err := m.source.StageResults(runID)
		return stagesLoadedMsg{stages: stages, err: err}
	}
}

// SelectedRun returns the highlighted run, or nil
func (m Model) SelectedRun() *runstore.Run {
	if m.selectedRow < 0 || m.selectedRow >= len(m.runs) {
		return nil
	}
	return m.runs[m.selectedRow]
}
