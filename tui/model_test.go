package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/polarmet/wrfpipe/internal/domain"
	"github.com/polarmet/wrfpipe/internal/runstore"
)

type fakeSource struct {
	runs   []*runstore.Run
	stages map[string][]domain.StageResult
}

func (f *fakeSource) ListRuns(opts runstore.ListOptions) ([]*runstore.Run, error) {
	return f.runs, nil
}

func (f *fakeSource) StageResults(runID string) ([]domain.StageResult, error) {
	return f.stages[runID], nil
}

func testSource() *fakeSource {
	return &fakeSource{
		runs: []*runstore.Run{
			{ID: "aaaa1111-2222", Case: "arctic2020", DateStamp: "2020031500", Status: domain.RunCompleted, CreatedAt: time.Now()},
			{ID: "bbbb3333-4444", Case: "alpine2021", DateStamp: "2021060100", Status: domain.RunFailed, CreatedAt: time.Now()},
		},
		stages: map[string][]domain.StageResult{
			"bbbb3333-4444": {
				{Stage: "geogrid", Outcome: domain.Success("ok"), Duration: time.Minute},
				{Stage: "ungrib", Outcome: domain.Failure(`found failure marker "FATAL"`)},
			},
		},
	}
}

// drive applies a message and returns the updated model
func drive(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(Model)
	if !ok {
		t.Fatalf("Update returned %T", updated)
	}
	return model
}

func TestModel_LoadsRuns(t *testing.T) {
	m := NewModel(testSource())

	msg := m.loadRuns()()
	loaded, ok := msg.(runsLoadedMsg)
	if !ok {
		t.Fatalf("loadRuns returned %T", msg)
	}
	if len(loaded.runs) != 2 {
		t.Errorf("runs = %d, want 2", len(loaded.runs))
	}

	m = drive(t, m, loaded)
	if len(m.runs) != 2 {
		t.Errorf("model runs = %d, want 2", len(m.runs))
	}
}

func TestModel_Navigation(t *testing.T) {
	m := NewModel(testSource())
	m = drive(t, m, m.loadRuns()())

	if m.selectedRow != 0 {
		t.Fatalf("initial selection = %d", m.selectedRow)
	}

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	if m.selectedRow != 1 {
		t.Errorf("after j: selection = %d, want 1", m.selectedRow)
	}

	// Cannot move past the last run
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	if m.selectedRow != 1 {
		t.Errorf("selection moved past the end: %d", m.selectedRow)
	}

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	if m.selectedRow != 0 {
		t.Errorf("after k: selection = %d, want 0", m.selectedRow)
	}
}

func TestModel_StagePanel(t *testing.T) {
	m := NewModel(testSource())
	m = drive(t, m, m.loadRuns()())
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})

	// Enter opens the stage panel and requests the stage history
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if !m.showStages {
		t.Fatal("enter should open the stage panel")
	}
	if cmd == nil {
		t.Fatal("enter should trigger a stage load")
	}

	m = drive(t, m, cmd())
	if len(m.stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(m.stages))
	}

	// Esc closes the panel again
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showStages || m.stages != nil {
		t.Error("esc should close the stage panel")
	}
}

func TestView_RendersRunsAndStages(t *testing.T) {
	m := NewModel(testSource())
	m = drive(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = drive(t, m, m.loadRuns()())
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	m = drive(t, m, cmd())

	out := m.View()
	for _, want := range []string{"arctic2020", "alpine2021", "geogrid", "ungrib", "FATAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_EmptyState(t *testing.T) {
	m := NewModel(&fakeSource{})
	m = drive(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m = drive(t, m, m.loadRuns()())

	if !strings.Contains(m.View(), "No runs recorded yet") {
		t.Error("empty state not rendered")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("aaaa1111-2222-3333"); got != "aaaa1111" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("ab"); got != "ab" {
		t.Errorf("shortID = %q", got)
	}
}
