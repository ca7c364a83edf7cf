package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.loadRuns()
		case "j", "down":
			if m.selectedRow < len(m.runs)-1 {
				m.selectedRow++
				if m.showStages {
					return m, m.loadStages()
				}
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
				if m.showStages {
					return m, m.loadStages()
				}
			}
		case "enter":
			m.showStages = true
			return m, m.loadStages()
		case "esc":
			m.showStages = false
			m.stages = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		cmds := []tea.Cmd{m.loadRuns(), tickCmd()}
		if m.showStages {
			cmds = append(cmds, m.loadStages())
		}
		return m, tea.Batch(cmds...)

	case runsLoadedMsg:
		m.loadErr = msg.err
		if msg.err == nil {
			m.runs = msg.runs
			if m.selectedRow >= len(m.runs) && len(m.runs) > 0 {
				m.selectedRow = len(m.runs) - 1
			}
		}
		m.lastRefresh = time.Now()

	case stagesLoadedMsg:
		if msg.err == nil {
			m.stages = msg.stages
		}
	}

	return m, nil
}
