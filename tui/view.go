package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/polarmet/wrfpipe/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	skippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	dimmedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	var running, failed int
	for _, r := range m.runs {
		switch r.Status {
		case domain.RunRunning:
			running++
		case domain.RunFailed:
			failed++
		}
	}
	header := fmt.Sprintf(" wrfpipe │ Runs: %d │ Running: %d │ Failed: %d ",
		len(m.runs), running, failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderRuns()))
	b.WriteString("\n")

	if m.showStages {
		b.WriteString(sectionStyle.Width(m.width - 2).Render(m.renderStages()))
		b.WriteString("\n")
	}

	if m.loadErr != nil {
		b.WriteString(failedStyle.Render(" " + m.loadErr.Error()))
		b.WriteString("\n")
	}

	help := " j/k: navigate │ enter: stages │ esc: back │ r: refresh │ q: quit "
	b.WriteString(statusBarStyle.Width(m.width).Render(help))

	return b.String()
}

func (m Model) renderRuns() string {
	if len(m.runs) == 0 {
		return dimmedStyle.Render("No runs recorded yet")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-12s %-16s %-12s %-10s %s\n",
		"RUN", "CASE", "DATE", "STATUS", "STARTED"))

	for i, r := range m.runs {
		line := fmt.Sprintf("%-12s %-16s %-12s %-10s %s",
			shortID(r.ID), r.Case, r.DateStamp, r.Status, humanize.Time(r.CreatedAt))

		style := runStatusStyle(r.Status)
		if i == m.selectedRow {
			style = selectedStyle
			line = "> " + line
		} else {
			line = "  " + line
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStages() string {
	run := m.SelectedRun()
	if run == nil {
		return dimmedStyle.Render("No run selected")
	}
	if len(m.stages) == 0 {
		return dimmedStyle.Render("No stages recorded for " + shortID(run.ID))
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Stages for %s (%s)\n", run.Case, shortID(run.ID)))

	for _, res := range m.stages {
		name := res.Stage
		if res.Step != "" {
			name += "/" + res.Step
		}

		line := fmt.Sprintf("  %-22s %-10s %8s  %s",
			name, res.Outcome.Status, res.Duration.Round(time.Second), res.Outcome.Reason)
		b.WriteString(stageStatusStyle(res.Outcome).Render(line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func runStatusStyle(status domain.RunStatus) lipgloss.Style {
	switch status {
	case domain.RunCompleted:
		return completedStyle
	case domain.RunRunning:
		return runningStyle
	case domain.RunFailed:
		return failedStyle
	default:
		return dimmedStyle
	}
}

func stageStatusStyle(o domain.Outcome) lipgloss.Style {
	switch o.Status {
	case domain.OutcomeSuccess:
		return completedStyle
	case domain.OutcomeSkipped:
		return skippedStyle
	default:
		if o.Indeterminate {
			return runningStyle
		}
		return failedStyle
	}
}

// shortID truncates a run ID for display
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
